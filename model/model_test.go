package model

import (
	"math"
	"testing"

	"github.com/pointlab/semseg/dataset"
)

func TestSoftmax(t *testing.T) {
	row := []float32{1, 1, 1}
	Softmax(row)
	for _, v := range row {
		if math.Abs(float64(v)-1.0/3.0) > 1e-6 {
			t.Errorf("uniform logits should give uniform probs, got %v", row)
		}
	}

	row = []float32{1000, 0}
	Softmax(row)
	if row[0] < 0.999 {
		t.Errorf("large logit should dominate, got %v", row)
	}
}

func TestUpdateProbs(t *testing.T) {
	acc := []float32{0, 0, 0.4, 0.6}
	probs := []float32{0.2, 0.8, 0.8, 0.2}
	if err := UpdateProbs(acc, probs, 2, 0.95); err != nil {
		t.Fatalf("UpdateProbs failed: %v", err)
	}
	// first row was untouched, so it takes the new probs directly
	if acc[0] != 0.2 || acc[1] != 0.8 {
		t.Errorf("zero row should take new probs, got %v", acc[:2])
	}
	// second row blends 0.95 old + 0.05 new
	if math.Abs(float64(acc[2])-(0.95*0.4+0.05*0.8)) > 1e-6 {
		t.Errorf("expected blended prob, got %f", acc[2])
	}

	if err := UpdateProbs(acc, probs[:2], 2, 0.95); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestWeightedCrossEntropy(t *testing.T) {
	loss := &WeightedCrossEntropy{NumClasses: 2}

	// perfectly confident and correct: loss near zero
	logits := []float32{100, 0, 0, 100}
	labels := []int32{0, 1}
	l, grad, valid, err := loss.Loss(logits, labels)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if valid != 2 {
		t.Errorf("expected 2 valid points, got %d", valid)
	}
	if l > 1e-4 {
		t.Errorf("expected near-zero loss, got %f", l)
	}
	for _, g := range grad {
		if math.Abs(float64(g)) > 1e-4 {
			t.Errorf("expected near-zero gradient, got %v", grad)
			break
		}
	}

	// uniform logits: loss is ln(2)
	logits = []float32{0, 0}
	labels = []int32{1}
	l, grad, _, err = loss.Loss(logits, labels)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if math.Abs(float64(l)-math.Log(2)) > 1e-5 {
		t.Errorf("expected ln(2), got %f", l)
	}
	// gradient pushes toward the true class
	if grad[1] >= 0 || grad[0] <= 0 {
		t.Errorf("gradient has wrong sign: %v", grad)
	}
}

func TestWeightedCrossEntropyIgnored(t *testing.T) {
	loss := &WeightedCrossEntropy{NumClasses: 2, IgnoredLabels: []int32{0}}
	logits := []float32{5, 0, 0, 5}
	labels := []int32{0, 1}
	l, grad, valid, err := loss.Loss(logits, labels)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if valid != 1 {
		t.Errorf("expected 1 valid point, got %d", valid)
	}
	if grad[0] != 0 || grad[1] != 0 {
		t.Errorf("ignored point should have zero gradient, got %v", grad[:2])
	}
	if l < 0 {
		t.Errorf("negative loss %f", l)
	}

	// everything ignored
	labels = []int32{0, 0}
	l, _, valid, err = loss.Loss(logits, labels)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if l != 0 || valid != 0 {
		t.Errorf("expected zero loss with no valid points, got %f/%d", l, valid)
	}
}

func TestWeightedCrossEntropyClassWeights(t *testing.T) {
	unweighted := &WeightedCrossEntropy{NumClasses: 2}
	weighted := &WeightedCrossEntropy{NumClasses: 2, Weights: []float32{1, 3}}

	logits := []float32{0, 0}
	labels := []int32{1}
	lu, _, _, err := unweighted.Loss(logits, labels)
	if err != nil {
		t.Fatal(err)
	}
	lw, _, _, err := weighted.Loss(logits, labels)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(lw)-3*float64(lu)) > 1e-5 {
		t.Errorf("class weight not applied: %f vs %f", lw, lu)
	}
}

func testCloud() *dataset.PointCloud {
	return &dataset.PointCloud{
		Points: []float32{0, 0, 0, 2, 0, 0, 0, 2, 0, 2, 2, 0},
		Feats:  []float32{0.5, 0.6, 0.7, 0.8},
		Labels: []int32{0, 1, 0, 1},
	}
}

func TestPointwiseTransform(t *testing.T) {
	m := NewPointwise(1, 2, 42)
	feats, labels, err := m.Transform(testCloud(), []int32{0, 1})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(feats) != 2*4 {
		t.Fatalf("expected 8 features, got %d", len(feats))
	}
	// centroid is (1,0,0); first point becomes (-1,0,0) with its feature
	want := []float32{-1, 0, 0, 0.5, 1, 0, 0, 0.6}
	for i, w := range want {
		if math.Abs(float64(feats[i]-w)) > 1e-6 {
			t.Errorf("feats[%d] = %f, want %f", i, feats[i], w)
		}
	}
	if labels[0] != 0 || labels[1] != 1 {
		t.Errorf("unexpected labels %v", labels)
	}

	bad := testCloud()
	bad.Feats = nil
	if _, _, err := m.Transform(bad, []int32{0}); err == nil {
		t.Error("expected error for feature dimension mismatch")
	}
}

func TestPointwiseGradientDescent(t *testing.T) {
	// Two linearly separable classes; a few gradient steps must reduce the
	// loss and classify the training points correctly.
	m := NewPointwise(0, 2, 7)
	loss := &WeightedCrossEntropy{NumClasses: 2}

	feats := []float32{
		-1, 0, 0,
		-2, 0.5, 0,
		1, 0, 0,
		2, -0.5, 0,
	}
	labels := []int32{0, 0, 1, 1}

	var first, last float32
	for step := 0; step < 200; step++ {
		logits, err := m.Forward(feats, 4)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		l, grad, _, err := loss.Loss(logits, labels)
		if err != nil {
			t.Fatalf("Loss failed: %v", err)
		}
		if step == 0 {
			first = l
		}
		last = l

		m.ZeroGrad()
		if err := m.Backward(feats, 4, grad); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		for _, p := range m.Params() {
			for i := range p.Data {
				p.Data[i] -= 0.5 * p.Grad[i]
			}
		}
	}
	if last >= first {
		t.Errorf("loss did not decrease: %f -> %f", first, last)
	}

	logits, err := m.Forward(feats, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range labels {
		got := int32(0)
		if logits[i*2+1] > logits[i*2] {
			got = 1
		}
		if got != want {
			t.Errorf("point %d classified as %d, want %d", i, got, want)
		}
	}
}

func TestPointwiseParamsStable(t *testing.T) {
	m := NewPointwise(2, 3, 1)
	params := m.Params()
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Name != "linear.weight" || params[1].Name != "linear.bias" {
		t.Errorf("unexpected param names: %s, %s", params[0].Name, params[1].Name)
	}
	if params[0].NumElements() != 3*5 || len(params[0].Data) != 15 {
		t.Errorf("weight shape wrong: %v", params[0].Shape)
	}
}
