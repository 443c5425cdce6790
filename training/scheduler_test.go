package training

import (
	"math"
	"testing"

	"github.com/pointlab/semseg/checkpoints"
)

func TestExponentialLRScheduler(t *testing.T) {
	s := NewExponentialLRScheduler(0.95)
	if got := s.GetLR(0, 0.01); got != 0.01 {
		t.Errorf("epoch 0: expected base rate, got %f", got)
	}
	if got := s.GetLR(2, 0.01); math.Abs(got-0.01*0.95*0.95) > 1e-9 {
		t.Errorf("epoch 2: got %f", got)
	}

	// out-of-range gamma falls back to the default
	if s := NewExponentialLRScheduler(0); s.Gamma != 0.95 {
		t.Errorf("expected default gamma 0.95, got %f", s.Gamma)
	}
}

func TestStepLRScheduler(t *testing.T) {
	s := NewStepLRScheduler(10, 0.5)
	if got := s.GetLR(9, 1.0); got != 1.0 {
		t.Errorf("epoch 9: got %f", got)
	}
	if got := s.GetLR(10, 1.0); got != 0.5 {
		t.Errorf("epoch 10: got %f", got)
	}
	if got := s.GetLR(25, 1.0); got != 0.25 {
		t.Errorf("epoch 25: got %f", got)
	}
}

func TestCosineAnnealingLRScheduler(t *testing.T) {
	s := NewCosineAnnealingLRScheduler(100, 0)
	if got := s.GetLR(0, 1.0); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("epoch 0: got %f", got)
	}
	if got := s.GetLR(50, 1.0); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("epoch 50: got %f", got)
	}
	if got := s.GetLR(150, 1.0); got != 0 {
		t.Errorf("past TMax: got %f", got)
	}
}

func TestSchedulerStepAndState(t *testing.T) {
	opt := NewSGD(newParams(), 0.01, 0, 0)
	sched := NewScheduler(NewExponentialLRScheduler(0.9), opt)

	sched.Step() // epoch 0
	if math.Abs(opt.GetLR()-0.01) > 1e-9 {
		t.Errorf("epoch 0 rate: %f", opt.GetLR())
	}
	sched.Step() // epoch 1
	if math.Abs(opt.GetLR()-0.009) > 1e-9 {
		t.Errorf("epoch 1 rate: %f", opt.GetLR())
	}

	state := sched.State()
	if state.Type != "ExponentialLR" || state.LastEpoch != 1 || state.Gamma != 0.9 {
		t.Fatalf("unexpected state: %+v", state)
	}

	opt2 := NewSGD(newParams(), 0.01, 0, 0)
	sched2 := NewScheduler(NewExponentialLRScheduler(0.9), opt2)
	if err := sched2.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if math.Abs(opt2.GetLR()-0.009) > 1e-9 {
		t.Errorf("restored rate: %f", opt2.GetLR())
	}
	sched2.Step() // epoch 2 continues the schedule
	if math.Abs(opt2.GetLR()-0.0081) > 1e-9 {
		t.Errorf("post-restore rate: %f", opt2.GetLR())
	}

	if err := sched2.LoadState(&checkpoints.SchedulerState{Type: "StepLR"}); err == nil {
		t.Error("expected error loading mismatched scheduler state")
	}
}
