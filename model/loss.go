package model

import (
	"fmt"
	"math"
)

// WeightedCrossEntropy is softmax cross-entropy with optional per-class
// weights. Points carrying an ignored label contribute nothing to the loss
// or gradient.
type WeightedCrossEntropy struct {
	NumClasses    int
	Weights       []float32 // nil for uniform
	IgnoredLabels []int32
}

func (l *WeightedCrossEntropy) ignored(label int32) bool {
	for _, ig := range l.IgnoredLabels {
		if label == ig {
			return true
		}
	}
	return false
}

// Loss returns the mean weighted cross-entropy over valid points, the
// gradient with respect to the logits, and the number of valid points.
// Labels outside [0, NumClasses) are treated as ignored.
func (l *WeightedCrossEntropy) Loss(logits []float32, labels []int32) (float32, []float32, int, error) {
	c := l.NumClasses
	if len(logits) != len(labels)*c {
		return 0, nil, 0, fmt.Errorf("logits length %d does not match %d labels with %d classes",
			len(logits), len(labels), c)
	}
	if l.Weights != nil && len(l.Weights) != c {
		return 0, nil, 0, fmt.Errorf("weights length %d does not match %d classes", len(l.Weights), c)
	}

	grad := make([]float32, len(logits))
	probs := make([]float32, c)
	var loss float64
	valid := 0
	for i, label := range labels {
		if l.ignored(label) || label < 0 || int(label) >= c {
			continue
		}
		copy(probs, logits[i*c:(i+1)*c])
		Softmax(probs)

		w := float32(1)
		if l.Weights != nil {
			w = l.Weights[label]
		}
		p := math.Max(float64(probs[label]), 1e-12)
		loss += float64(w) * -math.Log(p)
		for cc := 0; cc < c; cc++ {
			g := probs[cc]
			if int32(cc) == label {
				g -= 1
			}
			grad[i*c+cc] = w * g
		}
		valid++
	}
	if valid == 0 {
		return 0, grad, 0, nil
	}
	inv := float32(1) / float32(valid)
	for i := range grad {
		grad[i] *= inv
	}
	return float32(loss) * inv, grad, valid, nil
}
