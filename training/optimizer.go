package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/pointlab/semseg/checkpoints"
	"github.com/pointlab/semseg/model"
)

// Optimizer defines the methods that all optimizers must implement.
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate

	// State exports the optimizer for checkpointing; LoadState restores it.
	State() *checkpoints.OptimizerState
	LoadState(state *checkpoints.OptimizerState) error
}

// SGD implements stochastic gradient descent with momentum, optional weight
// decay, dampening, and Nesterov updates.
type SGD struct {
	parameters   []*model.Param
	learningRate float64
	momentum     float64
	weightDecay  float64
	dampening    float64
	nesterov     bool
	velocities   [][]float32
	mutex        sync.Mutex
}

// NewSGD creates a new SGD optimizer over the given parameters.
func NewSGD(parameters []*model.Param, lr, momentum, weightDecay float64) *SGD {
	sgd := &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
	}
	if momentum > 0 {
		sgd.velocities = make([][]float32, len(parameters))
		for i, p := range parameters {
			sgd.velocities[i] = make([]float32, len(p.Data))
		}
	}
	return sgd
}

// Step performs a single optimization step.
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for i, param := range sgd.parameters {
		for j := range param.Data {
			grad := float64(param.Grad[j])
			if sgd.weightDecay > 0 {
				grad += sgd.weightDecay * float64(param.Data[j])
			}
			if sgd.momentum > 0 {
				v := sgd.momentum*float64(sgd.velocities[i][j]) + (1-sgd.dampening)*grad
				sgd.velocities[i][j] = float32(v)
				if sgd.nesterov {
					grad += sgd.momentum * v
				} else {
					grad = v
				}
			}
			param.Data[j] -= float32(sgd.learningRate * grad)
		}
	}
	return nil
}

func (sgd *SGD) GetLR() float64 {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	return sgd.learningRate
}

func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// State exports the momentum buffers and hyperparameters.
func (sgd *SGD) State() *checkpoints.OptimizerState {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	state := &checkpoints.OptimizerState{
		Type: "sgd",
		Parameters: map[string]float64{
			"lr":           sgd.learningRate,
			"momentum":     sgd.momentum,
			"weight_decay": sgd.weightDecay,
		},
	}
	for i, p := range sgd.parameters {
		if sgd.velocities == nil {
			break
		}
		data := make([]float32, len(sgd.velocities[i]))
		copy(data, sgd.velocities[i])
		state.StateData = append(state.StateData, checkpoints.WeightTensor{
			Name:  p.Name + ".velocity",
			Shape: p.Shape,
			Data:  data,
		})
	}
	return state
}

// LoadState restores momentum buffers saved by State.
func (sgd *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "sgd" {
		return fmt.Errorf("cannot load %q state into SGD optimizer", state.Type)
	}
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	if lr, ok := state.Parameters["lr"]; ok {
		sgd.learningRate = lr
	}
	for _, tensor := range state.StateData {
		idx := -1
		for i, p := range sgd.parameters {
			if p.Name+".velocity" == tensor.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("velocity %q does not match any parameter", tensor.Name)
		}
		if len(tensor.Data) != len(sgd.parameters[idx].Data) {
			return fmt.Errorf("velocity %q has %d elements, parameter has %d",
				tensor.Name, len(tensor.Data), len(sgd.parameters[idx].Data))
		}
		if sgd.velocities == nil {
			sgd.velocities = make([][]float32, len(sgd.parameters))
		}
		sgd.velocities[idx] = make([]float32, len(tensor.Data))
		copy(sgd.velocities[idx], tensor.Data)
	}
	return nil
}

// Adam implements the Adam optimizer.
type Adam struct {
	parameters   []*model.Param
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	weightDecay  float64
	m            [][]float32
	v            [][]float32
	stepCount    int
	mutex        sync.Mutex
}

// NewAdam creates a new Adam optimizer with the usual defaults for the
// moment coefficients.
func NewAdam(parameters []*model.Param, lr, weightDecay float64) *Adam {
	adam := &Adam{
		parameters:   parameters,
		learningRate: lr,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-8,
		weightDecay:  weightDecay,
		m:            make([][]float32, len(parameters)),
		v:            make([][]float32, len(parameters)),
	}
	for i, p := range parameters {
		adam.m[i] = make([]float32, len(p.Data))
		adam.v[i] = make([]float32, len(p.Data))
	}
	return adam
}

// Step performs a single optimization step with bias correction.
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.stepCount++
	bc1 := 1 - math.Pow(adam.beta1, float64(adam.stepCount))
	bc2 := 1 - math.Pow(adam.beta2, float64(adam.stepCount))

	for i, param := range adam.parameters {
		for j := range param.Data {
			grad := float64(param.Grad[j])
			if adam.weightDecay > 0 {
				grad += adam.weightDecay * float64(param.Data[j])
			}
			m := adam.beta1*float64(adam.m[i][j]) + (1-adam.beta1)*grad
			v := adam.beta2*float64(adam.v[i][j]) + (1-adam.beta2)*grad*grad
			adam.m[i][j] = float32(m)
			adam.v[i][j] = float32(v)

			mHat := m / bc1
			vHat := v / bc2
			param.Data[j] -= float32(adam.learningRate * mHat / (math.Sqrt(vHat) + adam.epsilon))
		}
	}
	return nil
}

func (adam *Adam) GetLR() float64 {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	return adam.learningRate
}

func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.learningRate = lr
}

// State exports both moment buffers and the step count.
func (adam *Adam) State() *checkpoints.OptimizerState {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	state := &checkpoints.OptimizerState{
		Type: "adam",
		Parameters: map[string]float64{
			"lr":    adam.learningRate,
			"beta1": adam.beta1,
			"beta2": adam.beta2,
			"step":  float64(adam.stepCount),
		},
	}
	for i, p := range adam.parameters {
		m := make([]float32, len(adam.m[i]))
		copy(m, adam.m[i])
		v := make([]float32, len(adam.v[i]))
		copy(v, adam.v[i])
		state.StateData = append(state.StateData,
			checkpoints.WeightTensor{Name: p.Name + ".m", Shape: p.Shape, Data: m},
			checkpoints.WeightTensor{Name: p.Name + ".v", Shape: p.Shape, Data: v})
	}
	return state
}

// LoadState restores moment buffers saved by State.
func (adam *Adam) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "adam" {
		return fmt.Errorf("cannot load %q state into Adam optimizer", state.Type)
	}
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	if lr, ok := state.Parameters["lr"]; ok {
		adam.learningRate = lr
	}
	if step, ok := state.Parameters["step"]; ok {
		adam.stepCount = int(step)
	}
	for _, tensor := range state.StateData {
		for i, p := range adam.parameters {
			var dst []float32
			switch tensor.Name {
			case p.Name + ".m":
				dst = adam.m[i]
			case p.Name + ".v":
				dst = adam.v[i]
			default:
				continue
			}
			if len(tensor.Data) != len(dst) {
				return fmt.Errorf("moment %q has %d elements, parameter has %d",
					tensor.Name, len(tensor.Data), len(dst))
			}
			copy(dst, tensor.Data)
		}
	}
	return nil
}

// NewOptimizer builds the optimizer named in the pipeline config.
func NewOptimizer(name string, params []*model.Param, lr, momentum, weightDecay float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return NewSGD(params, lr, momentum, weightDecay), nil
	case "adam":
		return NewAdam(params, lr, weightDecay), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}
