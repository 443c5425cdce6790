package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// memorySplit is a Split over clouds already resident in memory.
type memorySplit struct {
	name    string
	dataset string
	clouds  []*PointCloud
	attrs   []Attr
	sampler Sampler
}

func (s *memorySplit) Len() int { return len(s.clouds) }

func (s *memorySplit) Get(idx int) (*PointCloud, error) {
	if idx < 0 || idx >= len(s.clouds) {
		return nil, fmt.Errorf("cloud index %d out of range [0, %d)", idx, len(s.clouds))
	}
	return s.clouds[idx], nil
}

func (s *memorySplit) Attr(idx int) Attr {
	if idx < 0 || idx >= len(s.attrs) {
		return Attr{Index: idx, Split: s.name}
	}
	return s.attrs[idx]
}

func (s *memorySplit) Sampler() Sampler { return s.sampler }

// InMemory is a Dataset backed by clouds held in memory, used by tests and
// small experiments. Test results are retained in memory and optionally
// written to ResultDir as one label per line.
type InMemory struct {
	name         string
	labelToNames map[int]string
	splits       map[string]*memorySplit

	// ResultDir, when non-empty, receives <cloud-name>.labels files from
	// SaveTestResult.
	ResultDir string

	mu      sync.Mutex
	results map[string]*TestResult
}

// NewInMemory creates an empty in-memory dataset.
func NewInMemory(name string, labelToNames map[int]string) *InMemory {
	return &InMemory{
		name:         name,
		labelToNames: labelToNames,
		splits:       make(map[string]*memorySplit),
		results:      make(map[string]*TestResult),
	}
}

// AddSplit registers the clouds of one split. The test split gets a
// spatially regular sampler, other splits a random sampler.
func (d *InMemory) AddSplit(split string, clouds []*PointCloud) error {
	attrs := make([]Attr, len(clouds))
	for i, pc := range clouds {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("cloud %d of split %q: %w", i, split, err)
		}
		attrs[i] = Attr{
			Index: i,
			Name:  fmt.Sprintf("%s_%03d", split, i),
			Split: split,
		}
	}

	var sampler Sampler
	if split == SplitTest {
		sampler = NewSpatiallyRegularSampler(int64(len(clouds)))
	} else {
		sampler = NewRandomSampler(int64(len(clouds)))
	}

	d.splits[split] = &memorySplit{
		name:    split,
		dataset: d.name,
		clouds:  clouds,
		attrs:   attrs,
		sampler: sampler,
	}
	return nil
}

func (d *InMemory) Name() string { return d.name }

func (d *InMemory) LabelToNames() map[int]string { return d.labelToNames }

func (d *InMemory) GetSplit(name string) (Split, error) {
	s, ok := d.splits[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q has no split %q", d.name, name)
	}
	return s, nil
}

func (d *InMemory) SaveTestResult(result *TestResult, attr Attr) error {
	d.mu.Lock()
	d.results[attr.Name] = result
	d.mu.Unlock()

	if d.ResultDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.ResultDir, 0755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}

	var sb strings.Builder
	for _, l := range result.Labels {
		fmt.Fprintf(&sb, "%d\n", l)
	}
	path := filepath.Join(d.ResultDir, attr.Name+".labels")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write test result: %w", err)
	}
	return nil
}

// Result returns the stored test result for a cloud name, if any.
func (d *InMemory) Result(name string) (*TestResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.results[name]
	return r, ok
}

// InferenceSplit wraps a single cloud so the pipeline's inference path can
// reuse the test-time sweep machinery.
type InferenceSplit struct {
	cloud   *PointCloud
	sampler Sampler
}

// NewInferenceSplit creates a one-cloud split with possibility tracking.
func NewInferenceSplit(pc *PointCloud) (*InferenceSplit, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	if pc.NumPoints() == 0 {
		return nil, fmt.Errorf("inference cloud is empty")
	}
	return &InferenceSplit{
		cloud:   pc,
		sampler: NewSpatiallyRegularSampler(1),
	}, nil
}

func (s *InferenceSplit) Len() int { return 1 }

func (s *InferenceSplit) Get(idx int) (*PointCloud, error) {
	if idx != 0 {
		return nil, fmt.Errorf("inference split has a single cloud, got index %d", idx)
	}
	return s.cloud, nil
}

func (s *InferenceSplit) Attr(idx int) Attr {
	return Attr{Index: 0, Name: "inference", Split: SplitTest}
}

func (s *InferenceSplit) Sampler() Sampler { return s.sampler }
