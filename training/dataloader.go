package training

import (
	"context"
	"fmt"
	"sync"

	"github.com/pointlab/semseg/dataset"
	"github.com/pointlab/semseg/model"
)

// DataLoader draws windows from a split's sampler, runs the model transform
// on them, and collates them into batches.
type DataLoader struct {
	split      dataset.Split
	m          model.Model
	batcher    Batcher
	batchSize  int
	windowSize int
	steps      int
	position   int
	mutex      sync.Mutex
}

// NewDataLoader creates a loader producing steps batches per epoch. When
// steps is zero it defaults to one window per cloud in the split.
func NewDataLoader(split dataset.Split, m model.Model, batcher Batcher, batchSize, windowSize, steps int) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if steps <= 0 {
		steps = (split.Len() + batchSize - 1) / batchSize
		if steps == 0 {
			steps = 1
		}
	}
	return &DataLoader{
		split:      split,
		m:          m,
		batcher:    batcher,
		batchSize:  batchSize,
		windowSize: windowSize,
		steps:      steps,
	}, nil
}

// Len returns the number of batches per epoch.
func (dl *DataLoader) Len() int {
	return dl.steps
}

// Reset rewinds the loader and its sampler for a new epoch.
func (dl *DataLoader) Reset() error {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	dl.position = 0
	return dl.split.Sampler().Reset(dl.split)
}

// Next returns the next batch, or nil when the epoch is complete.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= dl.steps {
		return nil, nil
	}
	dl.position++

	sampler := dl.split.Sampler()
	samples := make([]Sample, 0, dl.batchSize)
	for i := 0; i < dl.batchSize; i++ {
		cloudIdx, indices, err := sampler.Next(dl.windowSize)
		if err != nil {
			return nil, fmt.Errorf("sampler failed: %v", err)
		}
		pc, err := dl.split.Get(cloudIdx)
		if err != nil {
			return nil, fmt.Errorf("failed to load cloud %d: %v", cloudIdx, err)
		}
		feats, labels, err := dl.m.Transform(pc, indices)
		if err != nil {
			return nil, fmt.Errorf("transform failed for cloud %d: %v", cloudIdx, err)
		}
		samples = append(samples, Sample{
			CloudIdx: cloudIdx,
			Indices:  indices,
			Feats:    feats,
			Labels:   labels,
			Rows:     len(indices),
		})
	}
	return dl.batcher.Collate(samples)
}

// Batches runs the loader in a background goroutine, prefetching up to
// prefetch batches ahead of the consumer. The returned channel closes when
// the epoch ends; errCh delivers at most one error.
func (dl *DataLoader) Batches(ctx context.Context, prefetch int) (<-chan *Batch, <-chan error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	out := make(chan *Batch, prefetch)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			batch, err := dl.Next()
			if err != nil {
				errCh <- err
				return
			}
			if batch == nil {
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}
