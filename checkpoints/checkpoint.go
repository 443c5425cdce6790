// Package checkpoints saves and restores training state so interrupted runs
// can resume from the last saved epoch.
package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// ModelState captures all model parameters.
type ModelState struct {
	Weights []WeightTensor `json:"weights"`
}

// OptimizerState captures optimizer-specific state (momentum, moments, step
// counts) alongside its scalar hyperparameters.
type OptimizerState struct {
	Type       string             `json:"type"` // "sgd" or "adam"
	Parameters map[string]float64 `json:"parameters,omitempty"`
	StateData  []WeightTensor     `json:"state_data,omitempty"`
}

// SchedulerState captures the learning-rate schedule position.
type SchedulerState struct {
	Type       string  `json:"type"`
	LastEpoch  int     `json:"last_epoch"`
	BaseLR     float64 `json:"base_lr"`
	CurrentLR  float64 `json:"current_lr"`
	Gamma      float64 `json:"gamma,omitempty"`
	StepSize   int     `json:"step_size,omitempty"`
	DecaySteps int     `json:"decay_steps,omitempty"`
}

// Metadata describes a checkpoint for bookkeeping.
type Metadata struct {
	ID          string    `json:"id"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is a complete training snapshot: the epoch it was taken at plus
// model, optimizer, and scheduler state.
type Checkpoint struct {
	Epoch          int             `json:"epoch"`
	ModelState     ModelState      `json:"model_state_dict"`
	OptimizerState *OptimizerState `json:"optimizer_state_dict,omitempty"`
	SchedulerState *SchedulerState `json:"scheduler_state_dict,omitempty"`
	Metadata       Metadata        `json:"metadata"`
}

// Saver writes checkpoints into a directory and prunes old ones.
type Saver struct {
	dir string

	// MaxKeep limits how many checkpoint files are retained; 0 keeps all.
	MaxKeep int
}

// NewSaver creates a Saver rooted at dir, creating the directory if needed.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}
	return &Saver{dir: dir}, nil
}

// Dir returns the directory checkpoints are written into.
func (s *Saver) Dir() string {
	return s.dir
}

// Save writes the checkpoint as ckpt_<epoch>.json and prunes older files
// beyond MaxKeep. The file name encodes the epoch zero-padded to five digits.
func (s *Saver) Save(ckpt *Checkpoint) (string, error) {
	if ckpt.Metadata.ID == "" {
		ckpt.Metadata.ID = uuid.New().String()
	}
	if ckpt.Metadata.Framework == "" {
		ckpt.Metadata.Framework = "semseg"
	}
	if ckpt.Metadata.CreatedAt.IsZero() {
		ckpt.Metadata.CreatedAt = time.Now()
	}

	path := filepath.Join(s.dir, fmt.Sprintf("ckpt_%05d.json", ckpt.Epoch))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ckpt); err != nil {
		return "", fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	if err := s.prune(); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a checkpoint file. A missing path is reported with an error
// wrapping os.ErrNotExist.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var ckpt Checkpoint
	if err := json.NewDecoder(file).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &ckpt, nil
}

var ckptName = regexp.MustCompile(`^ckpt_(\d+)\.json$`)

// Latest returns the path of the highest-epoch checkpoint in dir. It returns
// an error wrapping os.ErrNotExist when the directory holds no checkpoints.
func Latest(dir string) (string, error) {
	names, err := list(dir)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no checkpoint found in %s: %w", dir, os.ErrNotExist)
	}
	return filepath.Join(dir, names[len(names)-1]), nil
}

// list returns checkpoint file names in dir sorted by epoch.
func list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ckptName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// prune deletes the oldest checkpoints beyond MaxKeep.
func (s *Saver) prune() error {
	if s.MaxKeep <= 0 {
		return nil
	}
	names, err := list(s.dir)
	if err != nil {
		return err
	}
	for len(names) > s.MaxKeep {
		if err := os.Remove(filepath.Join(s.dir, names[0])); err != nil {
			return fmt.Errorf("failed to prune checkpoint: %v", err)
		}
		names = names[1:]
	}
	return nil
}
