// Package dataset defines the data contracts the segmentation pipeline
// consumes: datasets of labeled point clouds, their train/validation/test
// splits, and the samplers that draw windows from them.
package dataset

import (
	"fmt"
)

// Split names understood by Dataset.GetSplit.
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
	SplitTest       = "test"
)

// PointCloud holds one cloud with flat, row-major storage.
type PointCloud struct {
	Points []float32 // XYZ positions, length NumPoints*3
	Feats  []float32 // optional per-point features, length NumPoints*FeatDim
	Labels []int32   // optional per-point class ids, length NumPoints

	// ProjInds maps points of the original (full resolution) cloud onto this
	// cloud, used to reproject predictions after test-time aggregation. Empty
	// means identity.
	ProjInds []int32
}

// NumPoints returns the number of points in the cloud.
func (pc *PointCloud) NumPoints() int {
	return len(pc.Points) / 3
}

// FeatDim returns the per-point feature dimensionality, 0 when the cloud
// carries positions only.
func (pc *PointCloud) FeatDim() int {
	n := pc.NumPoints()
	if n == 0 || len(pc.Feats) == 0 {
		return 0
	}
	return len(pc.Feats) / n
}

// Validate checks the internal length invariants.
func (pc *PointCloud) Validate() error {
	if len(pc.Points)%3 != 0 {
		return fmt.Errorf("points length %d is not a multiple of 3", len(pc.Points))
	}
	n := pc.NumPoints()
	if len(pc.Labels) > 0 && len(pc.Labels) != n {
		return fmt.Errorf("labels length %d does not match %d points", len(pc.Labels), n)
	}
	if len(pc.Feats) > 0 && (n == 0 || len(pc.Feats)%n != 0) {
		return fmt.Errorf("feats length %d is not a multiple of %d points", len(pc.Feats), n)
	}
	return nil
}

// Attr carries the identity of one cloud within a split.
type Attr struct {
	Index int
	Name  string
	Path  string
	Split string
}

// Split is an indexed collection of point clouds with a sampler driving how
// windows are drawn from it.
type Split interface {
	Len() int
	Get(idx int) (*PointCloud, error)
	Attr(idx int) Attr
	Sampler() Sampler
}

// TestResult is the final per-cloud prediction emitted by the test sweep,
// reprojected onto the original cloud.
type TestResult struct {
	Labels []int32   // predicted class per point
	Scores []float32 // class probabilities, row-major [numPoints][numClasses]
}

// Dataset is the pipeline's view of a 3D segmentation dataset.
type Dataset interface {
	Name() string
	// LabelToNames maps class ids to display names.
	LabelToNames() map[int]string
	GetSplit(name string) (Split, error)
	// SaveTestResult persists the prediction for the cloud identified by attr.
	SaveTestResult(result *TestResult, attr Attr) error
}
