package training

import (
	"fmt"
)

// Sample is one sampled window after the model transform: the source cloud,
// the selected point indices, and the transformed feature rows.
type Sample struct {
	CloudIdx int
	Indices  []int32
	Feats    []float32
	Labels   []int32
	Rows     int
}

// Batch is a collated group of samples. Feats and Labels are concatenations
// of the sample rows; RowSplits marks sample boundaries as prefix sums, so
// sample i spans rows RowSplits[i] to RowSplits[i+1].
type Batch struct {
	Samples   []Sample
	Feats     []float32
	Labels    []int32
	Rows      int
	RowSplits []int
}

// Batcher collates transformed samples into a batch.
type Batcher interface {
	Collate(samples []Sample) (*Batch, error)
}

// DefaultBatcher stacks fixed-size windows; every sample must have the same
// number of rows.
type DefaultBatcher struct{}

func (DefaultBatcher) Collate(samples []Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot collate empty batch")
	}
	rows := samples[0].Rows
	for _, s := range samples[1:] {
		if s.Rows != rows {
			return nil, fmt.Errorf("uneven sample sizes %d and %d; use the concat batcher", rows, s.Rows)
		}
	}
	return concat(samples), nil
}

// ConcatBatcher concatenates samples of any size, relying on RowSplits to
// recover per-sample boundaries.
type ConcatBatcher struct{}

func (ConcatBatcher) Collate(samples []Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot collate empty batch")
	}
	return concat(samples), nil
}

func concat(samples []Sample) *Batch {
	batch := &Batch{
		Samples:   samples,
		RowSplits: make([]int, 1, len(samples)+1),
	}
	for _, s := range samples {
		batch.Feats = append(batch.Feats, s.Feats...)
		batch.Labels = append(batch.Labels, s.Labels...)
		batch.Rows += s.Rows
		batch.RowSplits = append(batch.RowSplits, batch.Rows)
	}
	return batch
}

// NewBatcher builds the batcher named in the model config.
func NewBatcher(name string) (Batcher, error) {
	switch name {
	case "default", "":
		return DefaultBatcher{}, nil
	case "concat":
		return ConcatBatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown batcher %q", name)
	}
}
