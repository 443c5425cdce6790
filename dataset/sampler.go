package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// Sampler draws windows (subsets of points) from the clouds of a split.
// Samplers are stateful across calls and not safe for concurrent use; the
// data loader serializes access.
type Sampler interface {
	// Reset binds the sampler to a split and clears sampling state.
	Reset(split Split) error
	// Next returns the cloud index and the point indices of the next window.
	Next(windowSize int) (cloudIdx int, indices []int32, err error)
}

// PossibilitySampler is implemented by samplers that track per-point
// coverage. The test sweep uses possibilities to decide when a cloud has
// been fully predicted.
type PossibilitySampler interface {
	Sampler
	// Possibilities returns the coverage values of the given cloud. Values
	// grow toward and beyond 1 as windows touch the point.
	Possibilities(cloudIdx int) []float32
	// CloudID returns the cloud the most recent window was drawn from.
	CloudID() int
}

// windowIndices selects up to windowSize points of pc nearest to the point
// at centerIdx. When the cloud is smaller than the window the indices wrap
// so callers always receive exactly windowSize entries.
func windowIndices(pc *PointCloud, centerIdx int, windowSize int) []int32 {
	n := pc.NumPoints()
	cx := pc.Points[centerIdx*3]
	cy := pc.Points[centerIdx*3+1]
	cz := pc.Points[centerIdx*3+2]

	order := make([]int32, n)
	dist := make([]float32, n)
	for i := 0; i < n; i++ {
		dx := pc.Points[i*3] - cx
		dy := pc.Points[i*3+1] - cy
		dz := pc.Points[i*3+2] - cz
		order[i] = int32(i)
		dist[i] = dx*dx + dy*dy + dz*dz
	}
	sort.Slice(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	indices := make([]int32, windowSize)
	for i := range indices {
		indices[i] = order[i%n]
	}
	return indices
}

// RandomSampler draws windows around uniformly random center points, used
// for training and validation.
type RandomSampler struct {
	split Split
	rng   *rand.Rand
}

// NewRandomSampler creates a sampler seeded for reproducible epochs.
func NewRandomSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSampler) Reset(split Split) error {
	if split.Len() == 0 {
		return fmt.Errorf("split is empty")
	}
	s.split = split
	return nil
}

func (s *RandomSampler) Next(windowSize int) (int, []int32, error) {
	if s.split == nil {
		return 0, nil, fmt.Errorf("sampler not bound to a split")
	}
	cloudIdx := s.rng.Intn(s.split.Len())
	pc, err := s.split.Get(cloudIdx)
	if err != nil {
		return 0, nil, fmt.Errorf("load cloud %d: %w", cloudIdx, err)
	}
	if pc.NumPoints() == 0 {
		return 0, nil, fmt.Errorf("cloud %d is empty", cloudIdx)
	}
	center := s.rng.Intn(pc.NumPoints())
	return cloudIdx, windowIndices(pc, center, windowSize), nil
}

// SpatiallyRegularSampler sweeps each cloud by repeatedly drawing a window
// around the least-covered point and raising the coverage ("possibility") of
// every point in the window by a distance-weighted delta. Clouds are swept
// in order of least coverage, so overlapping windows eventually push every
// possibility past any fixed threshold.
type SpatiallyRegularSampler struct {
	split         Split
	rng           *rand.Rand
	possibilities [][]float32
	cloudID       int
}

// NewSpatiallyRegularSampler creates a coverage-tracking sampler.
func NewSpatiallyRegularSampler(seed int64) *SpatiallyRegularSampler {
	return &SpatiallyRegularSampler{rng: rand.New(rand.NewSource(seed)), cloudID: -1}
}

func (s *SpatiallyRegularSampler) Reset(split Split) error {
	if split.Len() == 0 {
		return fmt.Errorf("split is empty")
	}
	s.split = split
	s.cloudID = -1
	s.possibilities = make([][]float32, split.Len())
	for i := 0; i < split.Len(); i++ {
		pc, err := split.Get(i)
		if err != nil {
			return fmt.Errorf("load cloud %d: %w", i, err)
		}
		poss := make([]float32, pc.NumPoints())
		for j := range poss {
			// Small random jitter breaks ties between untouched points.
			poss[j] = s.rng.Float32() * 1e-3
		}
		s.possibilities[i] = poss
	}
	return nil
}

func (s *SpatiallyRegularSampler) Next(windowSize int) (int, []int32, error) {
	if s.split == nil {
		return 0, nil, fmt.Errorf("sampler not bound to a split")
	}

	cloudIdx, centerIdx := s.leastCovered()
	pc, err := s.split.Get(cloudIdx)
	if err != nil {
		return 0, nil, fmt.Errorf("load cloud %d: %w", cloudIdx, err)
	}

	indices := windowIndices(pc, centerIdx, windowSize)
	s.raisePossibilities(pc, cloudIdx, centerIdx, indices)
	s.cloudID = cloudIdx
	return cloudIdx, indices, nil
}

func (s *SpatiallyRegularSampler) Possibilities(cloudIdx int) []float32 {
	if cloudIdx < 0 || cloudIdx >= len(s.possibilities) {
		return nil
	}
	return s.possibilities[cloudIdx]
}

func (s *SpatiallyRegularSampler) CloudID() int {
	return s.cloudID
}

// leastCovered locates the cloud and point with the globally smallest
// possibility.
func (s *SpatiallyRegularSampler) leastCovered() (cloudIdx, pointIdx int) {
	best := float32(0)
	first := true
	for c, poss := range s.possibilities {
		for p, v := range poss {
			if first || v < best {
				best = v
				cloudIdx = c
				pointIdx = p
				first = false
			}
		}
	}
	return cloudIdx, pointIdx
}

// raisePossibilities adds (1 - (d/dmax)^2) to each window point, so points
// near the window center gain nearly a full unit of coverage and the rim
// gains little.
func (s *SpatiallyRegularSampler) raisePossibilities(pc *PointCloud, cloudIdx, centerIdx int, indices []int32) {
	cx := pc.Points[centerIdx*3]
	cy := pc.Points[centerIdx*3+1]
	cz := pc.Points[centerIdx*3+2]

	dists := make([]float32, len(indices))
	var maxDist float32
	for i, idx := range indices {
		dx := pc.Points[idx*3] - cx
		dy := pc.Points[idx*3+1] - cy
		dz := pc.Points[idx*3+2] - cz
		dists[i] = dx*dx + dy*dy + dz*dz
		if dists[i] > maxDist {
			maxDist = dists[i]
		}
	}

	poss := s.possibilities[cloudIdx]
	seen := make(map[int32]struct{}, len(indices))
	for i, idx := range indices {
		// Window wrapping on small clouds repeats indices; count each once.
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		delta := float32(1.0)
		if maxDist > 0 {
			delta = 1.0 - dists[i]/maxDist
		}
		poss[idx] += delta
	}
}

// Covered reports whether every possibility of the cloud exceeds threshold.
func Covered(possibilities []float32, threshold float32) bool {
	for _, v := range possibilities {
		if v <= threshold {
			return false
		}
	}
	return len(possibilities) > 0
}
