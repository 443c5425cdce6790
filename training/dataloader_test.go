package training

import (
	"context"
	"errors"
	"testing"

	"github.com/pointlab/semseg/dataset"
	"github.com/pointlab/semseg/model"
)

// twoClassClouds builds clouds where x < 0 is class 0 and x > 0 is class 1.
func twoClassClouds(n, pointsPer int) []*dataset.PointCloud {
	clouds := make([]*dataset.PointCloud, n)
	for c := range clouds {
		pc := &dataset.PointCloud{}
		for i := 0; i < pointsPer; i++ {
			x := float32(i%10) + 1
			label := int32(1)
			if i%2 == 0 {
				x = -x
				label = 0
			}
			y := float32(i) / float32(pointsPer)
			pc.Points = append(pc.Points, x, y, 0)
			pc.Feats = append(pc.Feats, x)
			pc.Labels = append(pc.Labels, label)
		}
		clouds[c] = pc
	}
	return clouds
}

func newTestDataset(t *testing.T) *dataset.InMemory {
	t.Helper()
	ds := dataset.NewInMemory("toy", map[int]string{0: "left", 1: "right"})
	if err := ds.AddSplit(dataset.SplitTrain, twoClassClouds(2, 40)); err != nil {
		t.Fatal(err)
	}
	if err := ds.AddSplit(dataset.SplitValidation, twoClassClouds(1, 40)); err != nil {
		t.Fatal(err)
	}
	if err := ds.AddSplit(dataset.SplitTest, twoClassClouds(2, 24)); err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestDataLoaderBatches(t *testing.T) {
	ds := newTestDataset(t)
	split, err := ds.GetSplit(dataset.SplitTrain)
	if err != nil {
		t.Fatal(err)
	}
	m := model.NewPointwise(1, 2, 1)

	dl, err := NewDataLoader(split, m, DefaultBatcher{}, 2, 8, 3)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}
	if dl.Len() != 3 {
		t.Errorf("expected 3 steps, got %d", dl.Len())
	}
	if err := dl.Reset(); err != nil {
		t.Fatal(err)
	}

	count := 0
	for {
		batch, err := dl.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if batch == nil {
			break
		}
		count++
		if batch.Rows != 16 {
			t.Errorf("expected 16 rows, got %d", batch.Rows)
		}
		if len(batch.Feats) != 16*m.InputDim() {
			t.Errorf("expected %d features, got %d", 16*m.InputDim(), len(batch.Feats))
		}
		if len(batch.RowSplits) != 3 || batch.RowSplits[2] != 16 {
			t.Errorf("unexpected row splits %v", batch.RowSplits)
		}
	}
	if count != 3 {
		t.Errorf("expected 3 batches, got %d", count)
	}

	// a second epoch works after Reset
	if err := dl.Reset(); err != nil {
		t.Fatal(err)
	}
	if batch, err := dl.Next(); err != nil || batch == nil {
		t.Errorf("loader did not restart: %v %v", batch, err)
	}
}

func TestDataLoaderPrefetch(t *testing.T) {
	ds := newTestDataset(t)
	split, err := ds.GetSplit(dataset.SplitTrain)
	if err != nil {
		t.Fatal(err)
	}
	m := model.NewPointwise(1, 2, 1)
	dl, err := NewDataLoader(split, m, DefaultBatcher{}, 1, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Reset(); err != nil {
		t.Fatal(err)
	}

	batches, errCh := dl.Batches(context.Background(), 2)
	count := 0
	for range batches {
		count++
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected loader error: %v", err)
	default:
	}
	if count != 4 {
		t.Errorf("expected 4 batches, got %d", count)
	}
}

func TestBatchesProducerStopsOnCancel(t *testing.T) {
	ds := newTestDataset(t)
	split, err := ds.GetSplit(dataset.SplitTrain)
	if err != nil {
		t.Fatal(err)
	}
	m := model.NewPointwise(1, 2, 1)
	dl, err := NewDataLoader(split, m, DefaultBatcher{}, 1, 8, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Reset(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	batches, errCh := dl.Batches(ctx, 1)
	cancel()

	// with nobody draining, the producer must report the cancellation and exit
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for range batches {
	}
}

func TestDefaultBatcherRejectsUneven(t *testing.T) {
	samples := []Sample{
		{Rows: 4, Feats: make([]float32, 12), Labels: make([]int32, 4)},
		{Rows: 2, Feats: make([]float32, 6), Labels: make([]int32, 2)},
	}
	if _, err := (DefaultBatcher{}).Collate(samples); err == nil {
		t.Error("expected error for uneven samples")
	}

	batch, err := (ConcatBatcher{}).Collate(samples)
	if err != nil {
		t.Fatalf("concat failed: %v", err)
	}
	if batch.Rows != 6 {
		t.Errorf("expected 6 rows, got %d", batch.Rows)
	}
	if len(batch.RowSplits) != 3 || batch.RowSplits[1] != 4 || batch.RowSplits[2] != 6 {
		t.Errorf("unexpected row splits %v", batch.RowSplits)
	}
}

func TestNewBatcher(t *testing.T) {
	if _, err := NewBatcher("default"); err != nil {
		t.Error(err)
	}
	if _, err := NewBatcher("concat"); err != nil {
		t.Error(err)
	}
	if _, err := NewBatcher("ragged"); err == nil {
		t.Error("expected error for unknown batcher")
	}
}
