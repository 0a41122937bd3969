// Package pipeline runs scoring jobs over a dataset and emits their reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/detectors/lof"
	"github.com/hed1ad/densityguard/pkg/detectors/lsc"
	"github.com/hed1ad/densityguard/pkg/detectors/nn"
	"github.com/hed1ad/densityguard/pkg/logging"
	"github.com/hed1ad/densityguard/pkg/metrics"
	"github.com/hed1ad/densityguard/pkg/report"
)

// Job selects one algorithm and how its ranking is reported.
type Job struct {
	Algorithm    detectors.Algorithm
	Threshold    float64
	HasThreshold bool
	Mode         report.Mode
}

// Options returns the report options of the job.
func (j Job) Options() report.Options {
	return report.Options{
		Mode:         j.Mode,
		Threshold:    j.Threshold,
		HasThreshold: j.HasThreshold,
	}
}

// JobResult is the outcome of one job.
type JobResult struct {
	Job     Job
	Scores  []float64
	Elapsed time.Duration
	Report  *report.Report
	Err     error
}

// Result is the outcome of a run.
type Result struct {
	RunID uuid.UUID
	Jobs  []JobResult
}

// Runner scores a dataset once per job and writes every report.
type Runner struct {
	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Sinks   SinkFactory
	// Workers bounds per-point parallelism. Zero uses detectors.DefaultConfig.
	Workers int
}

// NewDetector builds the detector for alg.
func NewDetector(alg detectors.Algorithm, workers int) (detectors.Detector, error) {
	switch alg {
	case detectors.LOF:
		return lof.New(lof.WithWorkers(workers)), nil
	case detectors.LSC:
		return lsc.New(lsc.WithWorkers(workers)), nil
	case detectors.NN:
		return nn.New(nn.WithWorkers(workers)), nil
	}
	return nil, fmt.Errorf("unknown algorithm %s", alg)
}

// Run executes jobs in order. A scoring failure stops the run, since every
// later job would hit the same data. A sink failure aborts only the report of
// its job; the remaining jobs still run and all errors are joined.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, jobs []Job) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	rec := r.Metrics
	if rec == nil {
		rec = metrics.New()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = detectors.DefaultConfig().Workers
	}

	res := &Result{RunID: uuid.New()}
	logger = logger.WithRun(res.RunID)
	logger.InfoContext(ctx, "run started", "points", ds.Len(), "jobs", len(jobs), "workers", workers)

	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		jr := r.runJob(ctx, logger.WithAlgorithm(job.Algorithm), rec, ds, job, workers)
		res.Jobs = append(res.Jobs, jr)
		if jr.Err == nil {
			continue
		}
		errs = append(errs, jr.Err)
		if jr.Report == nil {
			break
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.ErrorContext(ctx, "run failed", "error", err)
	} else {
		logger.InfoContext(ctx, "run completed")
	}
	return res, err
}

func (r *Runner) runJob(ctx context.Context, logger *logging.Logger, rec *metrics.Recorder, ds *dataset.Dataset, job Job, workers int) JobResult {
	jr := JobResult{Job: job}
	alg := job.Algorithm.String()

	start := time.Now()
	scores, err := score(rec, ds, job.Algorithm, workers)
	jr.Elapsed = time.Since(start)
	logger.LogPhase(ctx, "score", ds.Len(), jr.Elapsed, err)
	if err != nil {
		jr.Err = fmt.Errorf("score %s: %w", alg, err)
		return jr
	}
	jr.Scores = scores
	rec.ObservePhase(alg, "score", jr.Elapsed)
	rec.PointsScored.WithLabelValues(alg).Add(float64(ds.Len()))

	jr.Report = report.Build(ds, job.Algorithm, scores, jr.Elapsed, job.Options())
	rec.ObserveReport(alg, jr.Report.Outliers, jr.Report.Normal, jr.Report.Rows)

	if r.Sinks == nil {
		return jr
	}
	start = time.Now()
	jr.Err = emit(ctx, logger, r.Sinks, jr.Report, job.Algorithm)
	rec.ObservePhase(alg, "report", time.Since(start))
	return jr
}

func score(rec *metrics.Recorder, ds *dataset.Dataset, alg detectors.Algorithm, workers int) ([]float64, error) {
	if alg == detectors.LSC {
		res, err := lsc.New(lsc.WithWorkers(workers)).Compute(ds)
		if err != nil {
			return nil, err
		}
		rec.LSCCandidates.Set(float64(res.Candidates.GetCardinality()))
		return res.LSC, nil
	}

	d, err := NewDetector(alg, workers)
	if err != nil {
		return nil, err
	}
	return d.Score(ds)
}

func emit(ctx context.Context, logger *logging.Logger, sinks SinkFactory, rep *report.Report, alg detectors.Algorithm) error {
	sink, err := sinks(alg)
	if err != nil {
		logger.LogReport(ctx, alg.String(), 0, err)
		return fmt.Errorf("open %s sink: %w", alg, err)
	}

	name := describe(sink)
	err = rep.WriteTo(sink)
	if cerr := sink.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	logger.LogReport(ctx, name, rep.Rows, err)
	if err != nil {
		return fmt.Errorf("emit %s report: %w", alg, err)
	}
	return nil
}
