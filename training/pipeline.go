package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pointlab/semseg/checkpoints"
	"github.com/pointlab/semseg/config"
	"github.com/pointlab/semseg/dataset"
	"github.com/pointlab/semseg/metrics"
	"github.com/pointlab/semseg/model"
	"github.com/pointlab/semseg/summary"
)

// Pipeline drives a model against a dataset.
type Pipeline interface {
	RunTrain(ctx context.Context) error
	RunTest(ctx context.Context) error
	RunInference(ctx context.Context, pc *dataset.PointCloud) (*dataset.TestResult, error)
}

// Factory builds a pipeline from its parts.
type Factory func(m model.Model, ds dataset.Dataset, cfg *config.Config) (Pipeline, error)

var pipelineRegistry = map[string]Factory{}

// Register makes a pipeline available under name.
func Register(name string, factory Factory) {
	pipelineRegistry[name] = factory
}

// NewPipeline builds the registered pipeline named in the config.
func NewPipeline(m model.Model, ds dataset.Dataset, cfg *config.Config) (Pipeline, error) {
	factory, ok := pipelineRegistry[cfg.Pipeline.Name]
	if !ok {
		names := make([]string, 0, len(pipelineRegistry))
		for n := range pipelineRegistry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown pipeline %q, registered: %v", cfg.Pipeline.Name, names)
	}
	return factory(m, ds, cfg)
}

func init() {
	Register("SemanticSegmentation", func(m model.Model, ds dataset.Dataset, cfg *config.Config) (Pipeline, error) {
		return NewSemanticSegmentation(m, ds, cfg)
	})
}

// SemanticSegmentation trains, evaluates, and runs inference for point
// cloud segmentation models.
type SemanticSegmentation struct {
	cfg    *config.Config
	model  model.Model
	ds     dataset.Dataset
	logger *log.Logger

	// Out receives progress bars; defaults to os.Stdout.
	Out io.Writer

	runDir string

	// recorded tracks tags whose geometry was already written, so summaries
	// with use_reference only carry labels afterwards.
	recorded map[string]bool
}

// NewSemanticSegmentation creates the pipeline and its run directory under
// the configured main log dir.
func NewSemanticSegmentation(m model.Model, ds dataset.Dataset, cfg *config.Config) (*SemanticSegmentation, error) {
	runDir := filepath.Join(cfg.Pipeline.MainLogDir, fmt.Sprintf("%s_%s", m.Name(), ds.Name()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %v", err)
	}
	return &SemanticSegmentation{
		cfg:      cfg,
		model:    m,
		ds:       ds,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		Out:      os.Stdout,
		runDir:   runDir,
		recorded: map[string]bool{},
	}, nil
}

// RunDir returns the directory logs, checkpoints, and summaries go under.
func (p *SemanticSegmentation) RunDir() string {
	return p.runDir
}

func (p *SemanticSegmentation) checkpointDir() string {
	return filepath.Join(p.runDir, "checkpoint")
}

// openLogFile tees the pipeline logger into log_<phase>_<timestamp>.txt.
func (p *SemanticSegmentation) openLogFile(phase string) (*os.File, error) {
	name := fmt.Sprintf("log_%s_%s.txt", phase, time.Now().Format("2006-01-02_15:04:05"))
	f, err := os.Create(filepath.Join(p.runDir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %v", err)
	}
	p.logger = log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags)
	return f, nil
}

// newSummaryWriter opens an event writer in the next run slot under dir.
func (p *SemanticSegmentation) newSummaryWriter(dir string) (*summary.Writer, error) {
	runName := summary.NextRunID(dir) + time.Now().Format("2006-01-02_15:04:05")
	return summary.NewWriter(filepath.Join(dir, runName))
}

// loadModelState copies checkpointed weights into the model parameters,
// matching tensors by name.
func loadModelState(m model.Model, state *checkpoints.ModelState) error {
	params := m.Params()
	for _, tensor := range state.Weights {
		var dst *model.Param
		for _, p := range params {
			if p.Name == tensor.Name {
				dst = p
				break
			}
		}
		if dst == nil {
			return fmt.Errorf("checkpoint weight %q does not match any model parameter", tensor.Name)
		}
		if len(tensor.Data) != len(dst.Data) {
			return fmt.Errorf("weight %q has %d elements, model expects %d",
				tensor.Name, len(tensor.Data), len(dst.Data))
		}
		copy(dst.Data, tensor.Data)
	}
	return nil
}

// modelState snapshots the model parameters for checkpointing.
func modelState(m model.Model) checkpoints.ModelState {
	var state checkpoints.ModelState
	for _, p := range m.Params() {
		data := make([]float32, len(p.Data))
		copy(data, p.Data)
		state.Weights = append(state.Weights, checkpoints.WeightTensor{
			Name:  p.Name,
			Shape: p.Shape,
			Data:  data,
		})
	}
	return state
}

// resume restores model, optimizer, and scheduler state and returns the
// first epoch to run. With no checkpoint available it returns 0.
func (p *SemanticSegmentation) resume(opt Optimizer, sched *Scheduler) (int, error) {
	path := p.cfg.Model.CkptPath
	if path == "" {
		if !p.cfg.Model.Resume() {
			return 0, nil
		}
		latest, err := checkpoints.Latest(p.checkpointDir())
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		path = latest
	}

	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return 0, err
	}
	if err := loadModelState(p.model, &ckpt.ModelState); err != nil {
		return 0, err
	}
	if ckpt.OptimizerState != nil && opt != nil {
		if err := opt.LoadState(ckpt.OptimizerState); err != nil {
			return 0, err
		}
	}
	if ckpt.SchedulerState != nil && sched != nil {
		if err := sched.LoadState(ckpt.SchedulerState); err != nil {
			return 0, err
		}
	}
	p.logger.Printf("restored checkpoint %s (epoch %d)", path, ckpt.Epoch)
	return ckpt.Epoch + 1, nil
}

// saveCheckpoint snapshots the whole training state at epoch.
func (p *SemanticSegmentation) saveCheckpoint(saver *checkpoints.Saver, epoch int, opt Optimizer, sched *Scheduler) error {
	ckpt := &checkpoints.Checkpoint{
		Epoch:          epoch,
		ModelState:     modelState(p.model),
		OptimizerState: opt.State(),
		SchedulerState: sched.State(),
		Metadata: checkpoints.Metadata{
			Description: fmt.Sprintf("%s on %s", p.model.Name(), p.ds.Name()),
		},
	}
	path, err := saver.Save(ckpt)
	if err != nil {
		return err
	}
	p.logger.Printf("checkpoint saved to %s", path)
	return nil
}

// clipGradNorm scales gradients so their global L2 norm is at most maxNorm.
func clipGradNorm(params []*model.Param, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm {
		return
	}
	scale := float32(maxNorm / (norm + 1e-6))
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] *= scale
		}
	}
}

// filterIgnored drops rows whose label is in ignored, so metrics only see
// points that contribute to the loss.
func filterIgnored(scores []float32, labels []int32, numClasses int, ignored []int32) ([]float32, []int32) {
	if len(ignored) == 0 {
		return scores, labels
	}
	skip := make(map[int32]struct{}, len(ignored))
	for _, ig := range ignored {
		skip[ig] = struct{}{}
	}
	outScores := make([]float32, 0, len(scores))
	outLabels := make([]int32, 0, len(labels))
	for i, label := range labels {
		if _, ok := skip[label]; ok {
			continue
		}
		outScores = append(outScores, scores[i*numClasses:(i+1)*numClasses]...)
		outLabels = append(outLabels, label)
	}
	return outScores, outLabels
}

// runEpoch performs one pass over the loader. When opt is non-nil the model
// is updated; otherwise the pass only evaluates. record, when non-nil, is
// called with the first batch and its logits.
func (p *SemanticSegmentation) runEpoch(ctx context.Context, desc string, dl *DataLoader, loss *model.WeightedCrossEntropy, opt Optimizer, record func(*Batch, []float32) error) (float64, *metrics.SegMetric, error) {
	// cancel on return so the producer never outlives the epoch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := dl.Reset(); err != nil {
		return 0, nil, err
	}
	seg := metrics.NewSegMetric(p.model.NumClasses())
	bar := NewProgressBar(p.Out, desc, dl.Len())

	batches, errCh := dl.Batches(ctx, p.cfg.Pipeline.NumWorkers)
	var lossSum float64
	steps := 0
	for batch := range batches {
		logits, err := p.model.Forward(batch.Feats, batch.Rows)
		if err != nil {
			return 0, nil, err
		}
		if record != nil && steps == 0 {
			if err := record(batch, logits); err != nil {
				return 0, nil, err
			}
		}
		batchLoss, grad, valid, err := loss.Loss(logits, batch.Labels)
		if err != nil {
			return 0, nil, err
		}
		if opt != nil && valid > 0 {
			p.model.ZeroGrad()
			if err := p.model.Backward(batch.Feats, batch.Rows, grad); err != nil {
				return 0, nil, err
			}
			clipGradNorm(p.model.Params(), p.cfg.Model.GradClipNorm)
			if err := opt.Step(); err != nil {
				return 0, nil, err
			}
		}

		scores, labels := filterIgnored(logits, batch.Labels, p.model.NumClasses(), p.cfg.Model.IgnoredLabels)
		if len(labels) > 0 {
			if err := seg.Update(scores, labels); err != nil {
				return 0, nil, err
			}
		}
		lossSum += float64(batchLoss)
		steps++

		acc := seg.Accuracy()
		display := map[string]float64{"loss": lossSum / float64(steps)}
		if acc != nil {
			display["acc"] = acc[len(acc)-1]
		}
		bar.Update(steps, display)
	}
	bar.Finish()

	select {
	case err := <-errCh:
		if err != nil {
			return 0, nil, err
		}
	default:
	}
	if steps == 0 {
		return 0, seg, nil
	}
	return lossSum / float64(steps), seg, nil
}

// lastOrNaN returns the mean entry a SegMetric appends, or NaN when the
// metric saw no points.
func lastOrNaN(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// argmax returns the class with the largest score in row.
func argmax(row []float32) int32 {
	best := 0
	for c := 1; c < len(row); c++ {
		if row[c] > row[best] {
			best = c
		}
	}
	return int32(best)
}

// batchRecorder returns a runEpoch hook emitting the first batch of an epoch
// as 3D summaries, or nil when the split is not recorded. Per batch it writes
// up to max_outputs clouds, each subsampled to max_pts points.
func (p *SemanticSegmentation) batchRecorder(writer *summary.Writer, dl *DataLoader, split string, epoch int) func(*Batch, []float32) error {
	sum := &p.cfg.Pipeline.Summary
	if writer == nil || !sum.Records(split) {
		return nil
	}
	return func(batch *Batch, logits []float32) error {
		maxOut := sum.MaxOutputs
		if maxOut <= 0 {
			maxOut = 1
		}
		numClasses := p.model.NumClasses()
		rowStart := 0
		for s, sample := range batch.Samples {
			if s >= maxOut {
				break
			}
			pc, err := dl.split.Get(sample.CloudIdx)
			if err != nil {
				return err
			}
			stride := 1
			if max := sum.MaxPts; max > 0 && sample.Rows > max {
				stride = (sample.Rows + max - 1) / max
			}
			var points, gt, pred []float32
			for i := 0; i < sample.Rows; i += stride {
				idx := int(sample.Indices[i])
				points = append(points, pc.Points[idx*3], pc.Points[idx*3+1], pc.Points[idx*3+2])
				gt = append(gt, float32(sample.Labels[i]))
				row := logits[(rowStart+i)*numClasses : (rowStart+i+1)*numClasses]
				pred = append(pred, float32(argmax(row)))
			}
			rowStart += sample.Rows

			tag := fmt.Sprintf("%s/%03d", split, s)
			if sum.UseReference && p.recorded[tag] {
				points = nil
			}
			if err := writer.Add3D(tag, int64(epoch), points, gt, pred, p.ds.LabelToNames()); err != nil {
				return err
			}
			p.recorded[tag] = true
		}
		return nil
	}
}

// RunTrain trains the model for the configured number of epochs, recording
// losses and metrics to TensorBoard and saving periodic checkpoints.
func (p *SemanticSegmentation) RunTrain(ctx context.Context) error {
	logFile, err := p.openLogFile("train")
	if err != nil {
		return err
	}
	defer logFile.Close()

	cfg := p.cfg.Pipeline
	p.logger.Printf("training %s on %s", p.model.Name(), p.ds.Name())

	trainSplit, err := p.ds.GetSplit(dataset.SplitTrain)
	if err != nil {
		return err
	}
	validSplit, err := p.ds.GetSplit(dataset.SplitValidation)
	if err != nil {
		return err
	}

	batcher, err := NewBatcher(p.cfg.Model.Batcher)
	if err != nil {
		return err
	}
	trainLoader, err := NewDataLoader(trainSplit, p.model, batcher,
		cfg.BatchSize, p.cfg.Model.NumPoints, p.cfg.Dataset.StepsPerEpochTrain)
	if err != nil {
		return err
	}
	validLoader, err := NewDataLoader(validSplit, p.model, batcher,
		cfg.ValBatchSize, p.cfg.Model.NumPoints, p.cfg.Dataset.StepsPerEpochValid)
	if err != nil {
		return err
	}

	lr := cfg.LearningRate
	if cfg.Optimizer == "adam" && cfg.AdamLR > 0 {
		lr = cfg.AdamLR
	}
	opt, err := NewOptimizer(cfg.Optimizer, p.model.Params(), lr, cfg.Momentum, cfg.WeightDecay)
	if err != nil {
		return err
	}
	sched := NewScheduler(NewExponentialLRScheduler(cfg.SchedulerGamma), opt)

	startEpoch, err := p.resume(opt, sched)
	if err != nil {
		return err
	}

	saver, err := checkpoints.NewSaver(p.checkpointDir())
	if err != nil {
		return err
	}

	writer, err := p.newSummaryWriter(filepath.Join(p.runDir, cfg.TrainSumDir))
	if err != nil {
		return err
	}
	defer writer.Close()
	p.logger.Printf("writing summaries to %s", writer.Path())

	desc := fmt.Sprintf("%s on %s", p.model.Name(), p.ds.Name())
	if err := writer.AddText("Description/Experiment", 0, desc); err != nil {
		return err
	}
	sections, err := p.cfg.DumpSections()
	if err != nil {
		return err
	}
	for _, name := range []string{"Dataset", "Model", "Pipeline"} {
		if err := writer.AddText("Configuration/"+name, 0, sections[name]); err != nil {
			return err
		}
	}

	loss := &model.WeightedCrossEntropy{
		NumClasses:    p.model.NumClasses(),
		IgnoredLabels: p.cfg.Model.IgnoredLabels,
	}

	for epoch := startEpoch; epoch <= cfg.MaxEpoch; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.logger.Printf("=== EPOCH %d/%d ===", epoch, cfg.MaxEpoch)

		trainLoss, trainSeg, err := p.runEpoch(ctx, fmt.Sprintf("training %d/%d", epoch, cfg.MaxEpoch),
			trainLoader, loss, opt, p.batchRecorder(writer, trainLoader, "train", epoch))
		if err != nil {
			return err
		}
		validLoss, validSeg, err := p.runEpoch(ctx, fmt.Sprintf("validation %d/%d", epoch, cfg.MaxEpoch),
			validLoader, loss, nil, p.batchRecorder(writer, validLoader, "valid", epoch))
		if err != nil {
			return err
		}
		sched.Step()

		trainAcc := lastOrNaN(trainSeg.Accuracy())
		trainIoU := lastOrNaN(trainSeg.IoU())
		validAcc := lastOrNaN(validSeg.Accuracy())
		validIoU := lastOrNaN(validSeg.IoU())

		step := int64(epoch)
		scalars := []struct {
			tag   string
			value float64
		}{
			{"Training loss", trainLoss},
			{"Validation loss", validLoss},
			{"Training accuracy/ Overall", trainAcc},
			{"Validation accuracy/ Overall", validAcc},
			{"Training IoU/ Overall", trainIoU},
			{"Validation IoU/ Overall", validIoU},
		}
		for _, s := range scalars {
			if math.IsNaN(s.value) {
				continue
			}
			if err := writer.AddScalar(s.tag, step, float32(s.value)); err != nil {
				return err
			}
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		p.logger.Printf("loss train: %.3f eval: %.3f", trainLoss, validLoss)
		p.logger.Printf("acc train: %.3f eval: %.3f", trainAcc, validAcc)
		p.logger.Printf("iou train: %.3f eval: %.3f", trainIoU, validIoU)
		p.logger.Printf("lr: %g", sched.LastLR())

		if epoch%cfg.SaveCkptFreq == 0 || epoch == cfg.MaxEpoch {
			if err := p.saveCheckpoint(saver, epoch, opt, sched); err != nil {
				return err
			}
		}
	}
	return nil
}

// sweep runs the sliding-window inference over every cloud of the split,
// accumulating smoothed probabilities until all points are covered past
// the end threshold.
func (p *SemanticSegmentation) sweep(ctx context.Context, split dataset.Split) ([][]float32, error) {
	sampler, ok := split.Sampler().(dataset.PossibilitySampler)
	if !ok {
		return nil, fmt.Errorf("split sampler does not track coverage")
	}
	if err := sampler.Reset(split); err != nil {
		return nil, err
	}

	numClasses := p.model.NumClasses()
	probs := make([][]float32, split.Len())
	totalPoints := 0
	for i := range probs {
		pc, err := split.Get(i)
		if err != nil {
			return nil, err
		}
		probs[i] = make([]float32, pc.NumPoints()*numClasses)
		totalPoints += pc.NumPoints()
	}

	covered := func() bool {
		for i := 0; i < split.Len(); i++ {
			if !dataset.Covered(sampler.Possibilities(i), endThreshold) {
				return false
			}
		}
		return true
	}

	bar := NewProgressBar(p.Out, "test", totalPoints)
	// Each window lifts at least its center past the threshold, so the
	// sweep needs no more steps than there are points.
	for step := 0; step <= totalPoints && !covered(); step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cloudIdx, indices, err := sampler.Next(p.cfg.Model.NumPoints)
		if err != nil {
			return nil, err
		}
		pc, err := split.Get(cloudIdx)
		if err != nil {
			return nil, err
		}
		feats, _, err := p.model.Transform(pc, indices)
		if err != nil {
			return nil, err
		}
		logits, err := p.model.Forward(feats, len(indices))
		if err != nil {
			return nil, err
		}
		for row := 0; row < len(indices); row++ {
			model.Softmax(logits[row*numClasses : (row+1)*numClasses])
		}

		// gather accumulated rows, blend, scatter back
		acc := make([]float32, len(indices)*numClasses)
		for row, idx := range indices {
			copy(acc[row*numClasses:(row+1)*numClasses], probs[cloudIdx][int(idx)*numClasses:(int(idx)+1)*numClasses])
		}
		if err := model.UpdateProbs(acc, logits, numClasses, p.cfg.Model.TestSmoothing); err != nil {
			return nil, err
		}
		for row, idx := range indices {
			copy(probs[cloudIdx][int(idx)*numClasses:(int(idx)+1)*numClasses], acc[row*numClasses:(row+1)*numClasses])
		}

		done := 0
		for i := 0; i < split.Len(); i++ {
			for _, poss := range sampler.Possibilities(i) {
				if poss > endThreshold {
					done++
				}
			}
		}
		bar.Update(done, nil)
	}
	bar.Finish()
	return probs, nil
}

// endThreshold is the coverage level at which the test sweep considers a
// point fully predicted.
const endThreshold = 0.5

// resultFromProbs converts accumulated probabilities into labels, applying
// the cloud's projection indices so the result covers the original points.
func resultFromProbs(pc *dataset.PointCloud, probs []float32, numClasses int) *dataset.TestResult {
	if len(pc.ProjInds) == 0 {
		labels := make([]int32, pc.NumPoints())
		for i := range labels {
			labels[i] = argmax(probs[i*numClasses : (i+1)*numClasses])
		}
		return &dataset.TestResult{Labels: labels, Scores: probs}
	}

	full := make([]float32, len(pc.ProjInds)*numClasses)
	labels := make([]int32, len(pc.ProjInds))
	for i, src := range pc.ProjInds {
		row := probs[int(src)*numClasses : (int(src)+1)*numClasses]
		copy(full[i*numClasses:(i+1)*numClasses], row)
		labels[i] = argmax(row)
	}
	return &dataset.TestResult{Labels: labels, Scores: full}
}

// RunTest sweeps the test split, saves per-cloud predictions through the
// dataset, and logs overall metrics where ground truth is available.
func (p *SemanticSegmentation) RunTest(ctx context.Context) error {
	logFile, err := p.openLogFile("test")
	if err != nil {
		return err
	}
	defer logFile.Close()

	if _, err := p.resume(nil, nil); err != nil {
		return err
	}

	split, err := p.ds.GetSplit(dataset.SplitTest)
	if err != nil {
		return err
	}
	probs, err := p.sweep(ctx, split)
	if err != nil {
		return err
	}

	var writer *summary.Writer
	if p.cfg.Pipeline.Summary.Records("test") {
		writer, err = p.newSummaryWriter(filepath.Join(p.runDir, "test_log"))
		if err != nil {
			return err
		}
		defer writer.Close()
	}

	numClasses := p.model.NumClasses()
	seg := metrics.NewSegMetric(numClasses)
	for i := 0; i < split.Len(); i++ {
		pc, err := split.Get(i)
		if err != nil {
			return err
		}
		result := resultFromProbs(pc, probs[i], numClasses)
		attr := split.Attr(i)
		if err := p.ds.SaveTestResult(result, attr); err != nil {
			return err
		}
		p.logger.Printf("saved test result for %s (%d points)", attr.Name, len(result.Labels))

		if pc.Labels != nil {
			scores, labels := filterIgnored(probs[i], pc.Labels, numClasses, p.cfg.Model.IgnoredLabels)
			if len(labels) > 0 {
				if err := seg.Update(scores, labels); err != nil {
					return err
				}
			}
		}
		if writer != nil {
			if err := p.record3D(writer, attr.Name, int64(i), pc, result); err != nil {
				return err
			}
		}
	}

	if acc := seg.Accuracy(); acc != nil {
		p.logger.Printf("test acc: %.3f iou: %.3f", lastOrNaN(acc), lastOrNaN(seg.IoU()))
	}
	return nil
}

// record3D emits the cloud geometry with ground-truth and predicted labels
// as a 3D summary, subsampled to the configured point budget.
func (p *SemanticSegmentation) record3D(writer *summary.Writer, name string, step int64, pc *dataset.PointCloud, result *dataset.TestResult) error {
	n := pc.NumPoints()
	stride := 1
	if max := p.cfg.Pipeline.Summary.MaxPts; max > 0 && n > max {
		stride = (n + max - 1) / max
	}
	points := make([]float32, 0, (n/stride+1)*3)
	pred := make([]float32, 0, n/stride+1)
	var gt []float32
	for i := 0; i < n; i += stride {
		points = append(points, pc.Points[i*3], pc.Points[i*3+1], pc.Points[i*3+2])
		if i < len(result.Labels) {
			pred = append(pred, float32(result.Labels[i]))
		} else {
			pred = append(pred, 0)
		}
		if i < len(pc.Labels) {
			gt = append(gt, float32(pc.Labels[i]))
		}
	}
	if len(gt) != len(pred) {
		gt = nil
	}
	return writer.Add3D("test/"+name, step, points, gt, pred, p.ds.LabelToNames())
}

// RunInference runs the sliding-window sweep over a single cloud and
// returns its prediction without touching the dataset.
func (p *SemanticSegmentation) RunInference(ctx context.Context, pc *dataset.PointCloud) (*dataset.TestResult, error) {
	if _, err := p.resume(nil, nil); err != nil {
		return nil, err
	}
	split, err := dataset.NewInferenceSplit(pc)
	if err != nil {
		return nil, err
	}
	probs, err := p.sweep(ctx, split)
	if err != nil {
		return nil, err
	}
	numClasses := p.model.NumClasses()
	result := resultFromProbs(pc, probs[0], numClasses)

	if len(pc.Labels) > 0 && len(pc.Labels) == len(result.Labels) {
		seg := metrics.NewSegMetric(numClasses)
		scores, labels := filterIgnored(result.Scores, pc.Labels, numClasses, p.cfg.Model.IgnoredLabels)
		if len(labels) > 0 {
			if err := seg.Update(scores, labels); err != nil {
				return nil, err
			}
			p.logger.Printf("inference acc: %.3f iou: %.3f",
				lastOrNaN(seg.Accuracy()), lastOrNaN(seg.IoU()))
		}
	}
	return result, nil
}
