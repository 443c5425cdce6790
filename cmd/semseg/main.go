// Command semseg trains, evaluates, and runs inference for point cloud
// semantic segmentation experiments described by a YAML config.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pointlab/semseg/config"
	"github.com/pointlab/semseg/dataset"
	"github.com/pointlab/semseg/model"
	"github.com/pointlab/semseg/training"
	"github.com/pointlab/semseg/vis"
)

var (
	cfgPath  string
	ckptPath string
	outPath  string
)

func main() {
	root := &cobra.Command{
		Use:           "semseg",
		Short:         "Point cloud semantic segmentation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&ckptPath, "ckpt", "", "checkpoint to load (overrides the config)")
	root.MarkPersistentFlagRequired("config")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model on the configured dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, err := buildPipeline()
			if err != nil {
				return err
			}
			return pipeline.RunTrain(cmd.Context())
		},
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Run the sliding-window test sweep over the test split",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, err := buildPipeline()
			if err != nil {
				return err
			}
			return pipeline.RunTest(cmd.Context())
		},
	}

	inferCmd := &cobra.Command{
		Use:   "infer <cloud.txt>",
		Short: "Predict labels for a single point cloud file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(cmd, args[0])
		},
	}
	inferCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (defaults to <input>.labels)")

	root.AddCommand(trainCmd, testCmd, inferCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "semseg: %v\n", err)
		os.Exit(1)
	}
}

// buildPipeline assembles the dataset, model, and pipeline from the config.
func buildPipeline() (training.Pipeline, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if ckptPath != "" {
		cfg.Model.CkptPath = ckptPath
	}

	ds, err := dataset.LoadDirectory(cfg.Dataset.Path, cfg.Dataset.Name, cfg.Dataset.FeatDim, labelNames(cfg))
	if err != nil {
		return nil, nil, err
	}
	m := model.NewPointwise(cfg.Dataset.FeatDim, cfg.Model.NumClasses, 0)

	pipeline, err := training.NewPipeline(m, ds, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, cfg, nil
}

// labelNames builds display names for the configured classes.
func labelNames(cfg *config.Config) map[int]string {
	names := make(map[int]string, cfg.Model.NumClasses)
	for i := 0; i < cfg.Model.NumClasses; i++ {
		names[i] = fmt.Sprintf("class_%d", i)
	}
	return names
}

// runInfer predicts labels for one cloud and writes them with display
// colors from the label lookup table.
func runInfer(cmd *cobra.Command, input string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if ckptPath != "" {
		cfg.Model.CkptPath = ckptPath
	}

	pc, err := dataset.ReadPointCloud(input, cfg.Dataset.FeatDim)
	if err != nil {
		return err
	}

	m := model.NewPointwise(cfg.Dataset.FeatDim, cfg.Model.NumClasses, 0)
	ds := dataset.NewInMemory(cfg.Dataset.Name, labelNames(cfg))
	pipeline, err := training.NewSemanticSegmentation(m, ds, cfg)
	if err != nil {
		return err
	}

	result, err := pipeline.RunInference(cmd.Context(), pc)
	if err != nil {
		return err
	}

	lut, err := vis.NewLabelLUT(labelNames(cfg), vis.ColormapDefault)
	if err != nil {
		return err
	}
	out := outPath
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".labels"
	}
	if err := writeLabels(out, pc, result, lut); err != nil {
		return err
	}
	fmt.Printf("wrote %d labels to %s\n", len(result.Labels), out)
	return nil
}

// writeLabels emits one "x y z label r g b" line per point.
func writeLabels(path string, pc *dataset.PointCloud, result *dataset.TestResult, lut *vis.LabelLUT) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i, label := range result.Labels {
		var p [3]float32
		if i < pc.NumPoints() {
			copy(p[:], pc.Points[i*3:i*3+3])
		}
		entry, ok := lut.Lookup(int(label))
		color := entry.Color
		if !ok {
			color = vis.Color{}
		}
		fmt.Fprintf(&sb, "%g %g %g %d %.3f %.3f %.3f\n",
			p[0], p[1], p[2], label, color[0], color[1], color[2])
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
