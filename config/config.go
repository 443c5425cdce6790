// Package config loads and validates YAML experiment configurations with
// dataset, model, and pipeline sections.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level experiment configuration.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Model    ModelConfig    `yaml:"model"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatasetConfig names the dataset and where to find it.
type DatasetConfig struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	FeatDim int    `yaml:"feat_dim"`

	// StepsPerEpochTrain / StepsPerEpochValid cap the number of loader steps
	// per epoch; 0 means one pass over the split.
	StepsPerEpochTrain int `yaml:"steps_per_epoch_train"`
	StepsPerEpochValid int `yaml:"steps_per_epoch_valid"`
}

// ModelConfig configures the model seen by the pipeline.
type ModelConfig struct {
	Name       string `yaml:"name"`
	NumClasses int    `yaml:"num_classes"`
	NumPoints  int    `yaml:"num_points"` // window size drawn by the sampler
	Batcher    string `yaml:"batcher"`    // "default" or "concat"

	CkptPath string `yaml:"ckpt_path"`
	IsResume *bool  `yaml:"is_resume"` // nil means true

	GradClipNorm float64 `yaml:"grad_clip_norm"` // <=0 disables clipping

	// IgnoredLabels are class ids excluded from loss and metrics.
	IgnoredLabels []int32 `yaml:"ignored_labels"`

	// TestSmoothing blends new window probabilities into the accumulated
	// per-point probabilities during the test sweep.
	TestSmoothing float64 `yaml:"test_smoothing"`
}

// Resume reports whether training resumes from the latest checkpoint when no
// explicit path is given. Defaults to true.
func (m *ModelConfig) Resume() bool {
	return m.IsResume == nil || *m.IsResume
}

// SummaryConfig controls TensorBoard summary recording.
type SummaryConfig struct {
	// RecordFor lists splits ("train", "valid", "test") for which 3D
	// summaries are recorded.
	RecordFor []string `yaml:"record_for"`
	// MaxPts subsamples recorded clouds; 0 means no limit.
	MaxPts int `yaml:"max_pts"`
	// UseReference records input geometry only on the first step and
	// references it afterwards.
	UseReference bool `yaml:"use_reference"`
	// MaxOutputs caps the clouds recorded per batch.
	MaxOutputs int `yaml:"max_outputs"`
}

// Records reports whether 3D summaries are recorded for the given split.
func (s *SummaryConfig) Records(split string) bool {
	for _, r := range s.RecordFor {
		if r == split {
			return true
		}
	}
	return false
}

// PipelineConfig drives the training/test loops.
type PipelineConfig struct {
	Name string `yaml:"name"`

	BatchSize     int `yaml:"batch_size"`
	ValBatchSize  int `yaml:"val_batch_size"`
	TestBatchSize int `yaml:"test_batch_size"`
	MaxEpoch      int `yaml:"max_epoch"`

	Optimizer      string  `yaml:"optimizer"` // "sgd" or "adam"
	LearningRate   float64 `yaml:"learning_rate"`
	AdamLR         float64 `yaml:"adam_lr"`
	Momentum       float64 `yaml:"momentum"`
	WeightDecay    float64 `yaml:"weight_decay"`
	SchedulerGamma float64 `yaml:"scheduler_gamma"`

	SaveCkptFreq int    `yaml:"save_ckpt_freq"`
	MainLogDir   string `yaml:"main_log_dir"`
	TrainSumDir  string `yaml:"train_sum_dir"`
	NumWorkers   int    `yaml:"num_workers"`

	Summary SummaryConfig `yaml:"summary"`
}

// Default returns the configuration defaults applied before unmarshalling.
func Default() Config {
	return Config{
		Model: ModelConfig{
			NumClasses:    2,
			NumPoints:     4096,
			Batcher:       "default",
			TestSmoothing: 0.95,
		},
		Pipeline: PipelineConfig{
			Name:           "SemanticSegmentation",
			BatchSize:      4,
			ValBatchSize:   4,
			TestBatchSize:  3,
			MaxEpoch:       100,
			Optimizer:      "sgd",
			LearningRate:   1e-2,
			AdamLR:         1e-2,
			Momentum:       0.98,
			SchedulerGamma: 0.95,
			SaveCkptFreq:   20,
			MainLogDir:     "./logs",
			TrainSumDir:    "train_log",
			NumWorkers:     2,
			Summary: SummaryConfig{
				MaxOutputs: 1,
			},
		},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Model.NumClasses < 2 {
		return fmt.Errorf("model.num_classes must be at least 2, got %d", c.Model.NumClasses)
	}
	if c.Model.NumPoints <= 0 {
		return fmt.Errorf("model.num_points must be positive, got %d", c.Model.NumPoints)
	}
	switch c.Model.Batcher {
	case "default", "concat":
	default:
		return fmt.Errorf("model.batcher must be \"default\" or \"concat\", got %q", c.Model.Batcher)
	}
	if c.Model.TestSmoothing < 0 || c.Model.TestSmoothing >= 1 {
		return fmt.Errorf("model.test_smoothing must be in [0, 1), got %f", c.Model.TestSmoothing)
	}

	p := &c.Pipeline
	if p.BatchSize <= 0 || p.ValBatchSize <= 0 || p.TestBatchSize <= 0 {
		return fmt.Errorf("pipeline batch sizes must be positive, got %d/%d/%d",
			p.BatchSize, p.ValBatchSize, p.TestBatchSize)
	}
	if p.MaxEpoch < 0 {
		return fmt.Errorf("pipeline.max_epoch must be non-negative, got %d", p.MaxEpoch)
	}
	switch p.Optimizer {
	case "sgd", "adam":
	default:
		return fmt.Errorf("pipeline.optimizer must be \"sgd\" or \"adam\", got %q", p.Optimizer)
	}
	if p.LearningRate <= 0 {
		return fmt.Errorf("pipeline.learning_rate must be positive, got %f", p.LearningRate)
	}
	if p.SchedulerGamma <= 0 || p.SchedulerGamma > 1 {
		return fmt.Errorf("pipeline.scheduler_gamma must be in (0, 1], got %f", p.SchedulerGamma)
	}
	if p.SaveCkptFreq <= 0 {
		return fmt.Errorf("pipeline.save_ckpt_freq must be positive, got %d", p.SaveCkptFreq)
	}
	for _, split := range p.Summary.RecordFor {
		switch split {
		case "train", "valid", "test":
		default:
			return fmt.Errorf("summary.record_for: unknown split %q", split)
		}
	}
	return nil
}

// Dump serializes the whole configuration back to YAML.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

// DumpSections serializes each top-level section to YAML separately, so the
// run description can tag them individually.
func (c *Config) DumpSections() (map[string]string, error) {
	sections := map[string]interface{}{
		"Dataset":  c.Dataset,
		"Model":    c.Model,
		"Pipeline": c.Pipeline,
	}
	out := make(map[string]string, len(sections))
	for name, section := range sections {
		data, err := yaml.Marshal(section)
		if err != nil {
			return nil, fmt.Errorf("marshal %s config: %w", name, err)
		}
		out[name] = string(data)
	}
	return out, nil
}
