// Package metrics accumulates semantic-segmentation quality measures
// (per-class accuracy and IoU) from prediction scores and ground truth.
package metrics

import (
	"fmt"
	"math"
)

// ConfusionMatrix accumulates classification outcomes indexed as
// [true_class][predicted_class].
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int64
	TotalSamples int64
}

// NewConfusionMatrix creates an empty numClasses x numClasses matrix.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int64, numClasses)
	for i := range matrix {
		matrix[i] = make([]int64, numClasses)
	}
	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears all accumulated counts.
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// UpdateFromScores accumulates a batch of per-point prediction scores.
// scores is row-major [n][numClasses]; the predicted class is the argmax of
// each row. Samples whose true label falls outside [0, numClasses) are
// skipped.
func (cm *ConfusionMatrix) UpdateFromScores(scores []float32, labels []int32) error {
	n := len(labels)
	if len(scores) != n*cm.NumClasses {
		return fmt.Errorf("scores length mismatch: expected %d, got %d", n*cm.NumClasses, len(scores))
	}

	for i := 0; i < n; i++ {
		maxIdx := 0
		maxVal := scores[i*cm.NumClasses]
		for j := 1; j < cm.NumClasses; j++ {
			if scores[i*cm.NumClasses+j] > maxVal {
				maxVal = scores[i*cm.NumClasses+j]
				maxIdx = j
			}
		}

		trueClass := int(labels[i])
		if trueClass < 0 || trueClass >= cm.NumClasses {
			continue
		}

		cm.Matrix[trueClass][maxIdx]++
		cm.TotalSamples++
	}

	return nil
}

// OverallAccuracy returns the fraction of correctly classified samples.
func (cm *ConfusionMatrix) OverallAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}
	var correct int64
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// SegMetric accumulates per-class accuracy and IoU across an epoch. It is
// reset between epochs and is not safe for concurrent use.
type SegMetric struct {
	cm *ConfusionMatrix
}

// NewSegMetric creates a metric accumulator for numClasses classes.
func NewSegMetric(numClasses int) *SegMetric {
	return &SegMetric{cm: NewConfusionMatrix(numClasses)}
}

// Reset clears accumulated state for a new epoch.
func (m *SegMetric) Reset() {
	m.cm.Reset()
}

// Update accumulates a batch of prediction scores against true labels.
func (m *SegMetric) Update(scores []float32, labels []int32) error {
	return m.cm.UpdateFromScores(scores, labels)
}

// Accuracy returns per-class accuracy with the mean over valid classes
// appended as the final element. Classes with no samples contribute NaN and
// are excluded from the mean. Returns nil when nothing was accumulated.
func (m *SegMetric) Accuracy() []float64 {
	if m.cm.TotalSamples == 0 {
		return nil
	}

	accs := make([]float64, m.cm.NumClasses+1)
	sum, valid := 0.0, 0
	for c := 0; c < m.cm.NumClasses; c++ {
		var total int64
		for j := 0; j < m.cm.NumClasses; j++ {
			total += m.cm.Matrix[c][j]
		}
		if total == 0 {
			accs[c] = math.NaN()
			continue
		}
		accs[c] = float64(m.cm.Matrix[c][c]) / float64(total)
		sum += accs[c]
		valid++
	}

	if valid > 0 {
		accs[m.cm.NumClasses] = sum / float64(valid)
	} else {
		accs[m.cm.NumClasses] = math.NaN()
	}
	return accs
}

// IoU returns per-class intersection-over-union with the mean over valid
// classes appended as the final element, following the same conventions as
// Accuracy.
func (m *SegMetric) IoU() []float64 {
	if m.cm.TotalSamples == 0 {
		return nil
	}

	ious := make([]float64, m.cm.NumClasses+1)
	sum, valid := 0.0, 0
	for c := 0; c < m.cm.NumClasses; c++ {
		tp := m.cm.Matrix[c][c]
		var fn, fp int64
		for j := 0; j < m.cm.NumClasses; j++ {
			if j != c {
				fn += m.cm.Matrix[c][j]
				fp += m.cm.Matrix[j][c]
			}
		}
		union := tp + fn + fp
		if union == 0 {
			ious[c] = math.NaN()
			continue
		}
		ious[c] = float64(tp) / float64(union)
		sum += ious[c]
		valid++
	}

	if valid > 0 {
		ious[m.cm.NumClasses] = sum / float64(valid)
	} else {
		ious[m.cm.NumClasses] = math.NaN()
	}
	return ious
}

// ConfusionMatrix exposes the underlying counts, mainly for tests and
// diagnostics.
func (m *SegMetric) ConfusionMatrix() *ConfusionMatrix {
	return m.cm
}
