package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pointlab/semseg/dataset"
)

// Pointwise is a per-point linear classifier over xyz plus the dataset
// features. It serves as the reference model the pipeline is exercised
// with; richer architectures plug in through the Model interface.
type Pointwise struct {
	inDim   int
	classes int
	weight  *Param
	bias    *Param
}

// NewPointwise creates a linear classifier taking featDim dataset features
// per point in addition to the centered xyz coordinates.
func NewPointwise(featDim, numClasses int, seed int64) *Pointwise {
	inDim := 3 + featDim
	rng := rand.New(rand.NewSource(seed))
	scale := float32(1 / math.Sqrt(float64(inDim)))

	weight := &Param{
		Name:  "linear.weight",
		Shape: []int{numClasses, inDim},
		Data:  make([]float32, numClasses*inDim),
		Grad:  make([]float32, numClasses*inDim),
	}
	for i := range weight.Data {
		weight.Data[i] = (rng.Float32()*2 - 1) * scale
	}
	bias := &Param{
		Name:  "linear.bias",
		Shape: []int{numClasses},
		Data:  make([]float32, numClasses),
		Grad:  make([]float32, numClasses),
	}
	return &Pointwise{
		inDim:   inDim,
		classes: numClasses,
		weight:  weight,
		bias:    bias,
	}
}

func (m *Pointwise) Name() string    { return "Pointwise" }
func (m *Pointwise) NumClasses() int { return m.classes }
func (m *Pointwise) InputDim() int   { return m.inDim }

// Transform centers the selected points on their window centroid and
// concatenates the dataset features.
func (m *Pointwise) Transform(pc *dataset.PointCloud, indices []int32) ([]float32, []int32, error) {
	featDim := m.inDim - 3
	if pc.FeatDim() != featDim {
		return nil, nil, fmt.Errorf("expected %d point features, dataset has %d", featDim, pc.FeatDim())
	}

	var cx, cy, cz float64
	for _, idx := range indices {
		cx += float64(pc.Points[idx*3])
		cy += float64(pc.Points[idx*3+1])
		cz += float64(pc.Points[idx*3+2])
	}
	n := float64(len(indices))
	cx, cy, cz = cx/n, cy/n, cz/n

	feats := make([]float32, 0, len(indices)*m.inDim)
	labels := make([]int32, 0, len(indices))
	for _, idx := range indices {
		feats = append(feats,
			pc.Points[idx*3]-float32(cx),
			pc.Points[idx*3+1]-float32(cy),
			pc.Points[idx*3+2]-float32(cz))
		if featDim > 0 {
			feats = append(feats, pc.Feats[int(idx)*featDim:(int(idx)+1)*featDim]...)
		}
		if pc.Labels != nil {
			labels = append(labels, pc.Labels[idx])
		} else {
			labels = append(labels, 0)
		}
	}
	return feats, labels, nil
}

// Forward computes logits = feats * weight^T + bias.
func (m *Pointwise) Forward(feats []float32, rows int) ([]float32, error) {
	if len(feats) != rows*m.inDim {
		return nil, fmt.Errorf("feature length %d does not match %d rows of %d", len(feats), rows, m.inDim)
	}
	logits := make([]float32, rows*m.classes)
	for i := 0; i < rows; i++ {
		row := feats[i*m.inDim : (i+1)*m.inDim]
		for c := 0; c < m.classes; c++ {
			w := m.weight.Data[c*m.inDim : (c+1)*m.inDim]
			sum := m.bias.Data[c]
			for d, x := range row {
				sum += w[d] * x
			}
			logits[i*m.classes+c] = sum
		}
	}
	return logits, nil
}

// Backward accumulates dL/dW = grad^T * feats and dL/db = column sums.
func (m *Pointwise) Backward(feats []float32, rows int, gradLogits []float32) error {
	if len(feats) != rows*m.inDim || len(gradLogits) != rows*m.classes {
		return fmt.Errorf("gradient shape mismatch: %d feats, %d grads for %d rows",
			len(feats), len(gradLogits), rows)
	}
	for i := 0; i < rows; i++ {
		row := feats[i*m.inDim : (i+1)*m.inDim]
		for c := 0; c < m.classes; c++ {
			g := gradLogits[i*m.classes+c]
			if g == 0 {
				continue
			}
			gw := m.weight.Grad[c*m.inDim : (c+1)*m.inDim]
			for d, x := range row {
				gw[d] += g * x
			}
			m.bias.Grad[c] += g
		}
	}
	return nil
}

// Params returns the trainable parameters in a stable order.
func (m *Pointwise) Params() []*Param {
	return []*Param{m.weight, m.bias}
}

// ZeroGrad clears all accumulated gradients.
func (m *Pointwise) ZeroGrad() {
	for _, p := range m.Params() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}
