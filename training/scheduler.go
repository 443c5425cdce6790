package training

import (
	"fmt"
	"math"

	"github.com/pointlab/semseg/checkpoints"
)

// LRScheduler computes the learning rate for an epoch. Implementations are
// pure functions of the epoch so restoring from a checkpoint only needs the
// epoch counter.
type LRScheduler interface {
	// GetLR returns the learning rate for the given epoch.
	GetLR(epoch int, baseLR float64) float64
	// GetName returns the scheduler name for logging and checkpoints.
	GetName() string
}

// ExponentialLRScheduler decays the learning rate by gamma every epoch.
type ExponentialLRScheduler struct {
	Gamma float64
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler.
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma > 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// StepLRScheduler reduces the learning rate by gamma every stepSize epochs.
type StepLRScheduler struct {
	StepSize int
	Gamma    float64
}

// NewStepLRScheduler creates a step learning rate scheduler.
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// CosineAnnealingLRScheduler anneals the learning rate along a half cosine
// from baseLR to EtaMin over TMax epochs.
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler.
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// Scheduler drives an LRScheduler against an optimizer, tracking the last
// stepped epoch so runs can resume mid-schedule.
type Scheduler struct {
	strategy  LRScheduler
	optimizer Optimizer
	baseLR    float64
	lastEpoch int
}

// NewScheduler wraps strategy around the optimizer, using the optimizer's
// current learning rate as the base.
func NewScheduler(strategy LRScheduler, optimizer Optimizer) *Scheduler {
	return &Scheduler{
		strategy:  strategy,
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		lastEpoch: -1,
	}
}

// Step advances the schedule by one epoch and applies the new rate.
func (s *Scheduler) Step() {
	s.lastEpoch++
	s.optimizer.SetLR(s.strategy.GetLR(s.lastEpoch, s.baseLR))
}

// LastLR returns the most recently applied learning rate.
func (s *Scheduler) LastLR() float64 {
	return s.optimizer.GetLR()
}

// State exports the schedule position for checkpointing.
func (s *Scheduler) State() *checkpoints.SchedulerState {
	state := &checkpoints.SchedulerState{
		Type:      s.strategy.GetName(),
		LastEpoch: s.lastEpoch,
		BaseLR:    s.baseLR,
		CurrentLR: s.optimizer.GetLR(),
	}
	switch st := s.strategy.(type) {
	case *ExponentialLRScheduler:
		state.Gamma = st.Gamma
	case *StepLRScheduler:
		state.Gamma = st.Gamma
		state.StepSize = st.StepSize
	case *CosineAnnealingLRScheduler:
		state.DecaySteps = st.TMax
	}
	return state
}

// LoadState restores the schedule position saved by State.
func (s *Scheduler) LoadState(state *checkpoints.SchedulerState) error {
	if state.Type != s.strategy.GetName() {
		return fmt.Errorf("cannot load %q state into %s scheduler", state.Type, s.strategy.GetName())
	}
	s.lastEpoch = state.LastEpoch
	if state.BaseLR > 0 {
		s.baseLR = state.BaseLR
	}
	s.optimizer.SetLR(s.strategy.GetLR(s.lastEpoch, s.baseLR))
	return nil
}
