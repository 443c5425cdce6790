package training

import (
	"math"
	"testing"

	"github.com/pointlab/semseg/checkpoints"
	"github.com/pointlab/semseg/model"
)

func newParams() []*model.Param {
	return []*model.Param{
		{Name: "w", Shape: []int{2}, Data: []float32{1, 2}, Grad: []float32{0.5, -0.5}},
		{Name: "b", Shape: []int{1}, Data: []float32{0}, Grad: []float32{1}},
	}
}

func TestSGDStep(t *testing.T) {
	params := newParams()
	sgd := NewSGD(params, 0.1, 0, 0)
	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if math.Abs(float64(params[0].Data[0])-0.95) > 1e-6 {
		t.Errorf("expected 0.95, got %f", params[0].Data[0])
	}
	if math.Abs(float64(params[1].Data[0])+0.1) > 1e-6 {
		t.Errorf("expected -0.1, got %f", params[1].Data[0])
	}
}

func TestSGDMomentum(t *testing.T) {
	params := newParams()
	sgd := NewSGD(params, 0.1, 0.9, 0)

	// first step: velocity = grad, update = lr * grad
	if err := sgd.Step(); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(params[0].Data[0])-0.95) > 1e-6 {
		t.Errorf("first step wrong: %f", params[0].Data[0])
	}
	// second step with same grad: velocity = 0.9*0.5 + 0.5 = 0.95
	if err := sgd.Step(); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(params[0].Data[0])-(0.95-0.1*0.95)) > 1e-6 {
		t.Errorf("second step wrong: %f", params[0].Data[0])
	}
}

func TestSGDWeightDecay(t *testing.T) {
	params := []*model.Param{{Name: "w", Shape: []int{1}, Data: []float32{2}, Grad: []float32{0}}}
	sgd := NewSGD(params, 0.1, 0, 0.5)
	if err := sgd.Step(); err != nil {
		t.Fatal(err)
	}
	// grad = 0 + 0.5*2 = 1, update = 0.1
	if math.Abs(float64(params[0].Data[0])-1.9) > 1e-6 {
		t.Errorf("expected 1.9, got %f", params[0].Data[0])
	}
}

func TestSGDStateRoundTrip(t *testing.T) {
	params := newParams()
	sgd := NewSGD(params, 0.1, 0.9, 0)
	if err := sgd.Step(); err != nil {
		t.Fatal(err)
	}
	state := sgd.State()
	if state.Type != "sgd" || len(state.StateData) != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}

	fresh := NewSGD(newParams(), 0.1, 0.9, 0)
	if err := fresh.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if fresh.velocities[0][0] != sgd.velocities[0][0] {
		t.Errorf("velocity not restored: %f vs %f", fresh.velocities[0][0], sgd.velocities[0][0])
	}

	if err := fresh.LoadState(&checkpoints.OptimizerState{Type: "adam"}); err == nil {
		t.Error("expected error loading adam state into SGD")
	}
}

func TestAdamStep(t *testing.T) {
	params := []*model.Param{{Name: "w", Shape: []int{1}, Data: []float32{1}, Grad: []float32{1}}}
	adam := NewAdam(params, 0.1, 0)
	if err := adam.Step(); err != nil {
		t.Fatal(err)
	}
	// with bias correction the first step moves by roughly lr
	if math.Abs(float64(params[0].Data[0])-0.9) > 1e-3 {
		t.Errorf("expected first Adam step near 0.9, got %f", params[0].Data[0])
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	params := []*model.Param{{Name: "w", Shape: []int{1}, Data: []float32{1}, Grad: []float32{1}}}
	adam := NewAdam(params, 0.1, 0)
	if err := adam.Step(); err != nil {
		t.Fatal(err)
	}
	state := adam.State()
	if state.Type != "adam" || state.Parameters["step"] != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}

	fresh := NewAdam([]*model.Param{{Name: "w", Shape: []int{1}, Data: []float32{1}, Grad: []float32{1}}}, 0.1, 0)
	if err := fresh.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if fresh.stepCount != 1 || fresh.m[0][0] != adam.m[0][0] || fresh.v[0][0] != adam.v[0][0] {
		t.Error("adam moments not restored")
	}
}

func TestNewOptimizer(t *testing.T) {
	params := newParams()
	if _, err := NewOptimizer("sgd", params, 0.1, 0.9, 0); err != nil {
		t.Errorf("sgd: %v", err)
	}
	if _, err := NewOptimizer("adam", params, 0.1, 0, 0); err != nil {
		t.Errorf("adam: %v", err)
	}
	if _, err := NewOptimizer("rmsprop", params, 0.1, 0, 0); err == nil {
		t.Error("expected error for unknown optimizer")
	}
}
