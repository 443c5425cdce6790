// Package model defines the model contract the training pipeline drives,
// plus the loss used for semantic segmentation.
package model

import (
	"fmt"
	"math"

	"github.com/pointlab/semseg/dataset"
)

// Param is a named flat parameter tensor with its gradient buffer.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

// NumElements returns the element count implied by the shape.
func (p *Param) NumElements() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// Model is a pointwise segmentation model the pipeline can train and query.
// Forward and Backward operate on row-major feature matrices with rows
// points and the model's input dimension as columns.
type Model interface {
	Name() string
	NumClasses() int
	InputDim() int

	// Transform builds the feature matrix and label vector for the window
	// of pc selected by indices.
	Transform(pc *dataset.PointCloud, indices []int32) ([]float32, []int32, error)

	// Forward computes logits, rows by NumClasses.
	Forward(feats []float32, rows int) ([]float32, error)

	// Backward accumulates parameter gradients for the given upstream
	// logit gradients.
	Backward(feats []float32, rows int, gradLogits []float32) error

	Params() []*Param
	ZeroGrad()
}

// Softmax converts a row of logits to probabilities in place.
func Softmax(row []float32) {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	var sum float32
	for i, v := range row {
		e := float32(math.Exp(float64(v - max)))
		row[i] = e
		sum += e
	}
	for i := range row {
		row[i] /= sum
	}
}

// UpdateProbs blends fresh window probabilities into the accumulated
// per-point probabilities: acc = smoothing*acc + (1-smoothing)*probs.
// Rows of acc that are still all zero take probs directly so the first
// window is not dampened.
func UpdateProbs(acc, probs []float32, numClasses int, smoothing float64) error {
	if len(acc) != len(probs) {
		return fmt.Errorf("length mismatch: %d accumulated vs %d new", len(acc), len(probs))
	}
	s := float32(smoothing)
	for row := 0; row < len(acc); row += numClasses {
		zero := true
		for c := 0; c < numClasses; c++ {
			if acc[row+c] != 0 {
				zero = false
				break
			}
		}
		for c := 0; c < numClasses; c++ {
			if zero {
				acc[row+c] = probs[row+c]
			} else {
				acc[row+c] = s*acc[row+c] + (1-s)*probs[row+c]
			}
		}
	}
	return nil
}
