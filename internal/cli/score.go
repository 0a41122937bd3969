package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hed1ad/densityguard/pkg/config"
	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	pkgio "github.com/hed1ad/densityguard/pkg/io"
	"github.com/hed1ad/densityguard/pkg/io/csv"
	"github.com/hed1ad/densityguard/pkg/io/flow"
	"github.com/hed1ad/densityguard/pkg/io/pcap"
	"github.com/hed1ad/densityguard/pkg/logging"
	"github.com/hed1ad/densityguard/pkg/metrics"
	"github.com/hed1ad/densityguard/pkg/pipeline"
	"github.com/hed1ad/densityguard/pkg/report"
)

// ErrNoRecords is returned for a non-positive --limit.
var ErrNoRecords = errors.New("no records to be read")

// runOrder fixes the order jobs execute in, whatever order they were enabled.
var runOrder = map[detectors.Algorithm]int{
	detectors.LSC: 0,
	detectors.LOF: 1,
	detectors.NN:  2,
}

type scoreFlags struct {
	configPath string
	limit      int
	lof        bool
	lsc        bool
	nn         bool
	thresholds [3]float64
	mode       string
	format     string
	outputDir  string
	stdout     bool
	workers    int
	textfile   string
	logLevel   string
	logFormat  string
}

func newScoreCmd() *cobra.Command {
	f := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score [input]",
		Short: "Score a flow file and write one report per algorithm",
		Long: `Score reads flow records and ranks them by the selected algorithms.
A threshold flag enables its algorithm. Reports are written to
<output-dir>/<ALG>_Output unless --stdout is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fl.IntVarP(&f.limit, "limit", "l", 0, "maximum number of input lines to read")
	fl.BoolVar(&f.lof, "lof", false, "compute the local outlier factor")
	fl.BoolVar(&f.lsc, "lsc", false, "compute the local sparsity coefficient")
	fl.BoolVar(&f.nn, "nn", false, "rank by k-distance")
	fl.Float64Var(&f.thresholds[detectors.LOF], "lof-threshold", 0, "LOF outlier threshold")
	fl.Float64Var(&f.thresholds[detectors.LSC], "lsc-threshold", 0, "LSC outlier threshold")
	fl.Float64Var(&f.thresholds[detectors.NN], "nn-threshold", 0, "NN outlier threshold")
	fl.StringVarP(&f.mode, "mode", "m", "", "report mode: o (outliers), n (normal) or a (all)")
	fl.StringVarP(&f.format, "format", "f", "", "input format: flow, csv or pcap")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "", "directory for report files")
	fl.BoolVar(&f.stdout, "stdout", false, "write reports to stdout instead of files")
	fl.IntVarP(&f.workers, "workers", "w", 0, "goroutines per scoring phase (0 = GOMAXPROCS)")
	fl.StringVar(&f.textfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "log format: text or json")

	return cmd
}

func runScore(cmd *cobra.Command, args []string, f *scoreFlags) error {
	cfg, err := resolveConfig(cmd, args, f)
	if err != nil {
		return err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	ds, err := readDataset(cfg, logger)
	if err != nil {
		return err
	}

	jobs, err := buildJobs(cfg)
	if err != nil {
		return err
	}

	sinks := pipeline.FileSinks(cfg.OutputDir)
	if f.stdout {
		sinks = pipeline.WriterSinks(cmd.OutOrStdout())
	}
	if cfg.MQTT.Broker != "" {
		client, err := report.DialMQTT(report.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  cfg.MQTT.Timeout,
		})
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		sinks = pipeline.Fanout(sinks, pipeline.MQTTSinks(client, cfg.MQTT.Topic, cfg.MQTT.Timeout))
	}

	rec := metrics.New()
	runner := &pipeline.Runner{
		Logger:  logger,
		Metrics: rec,
		Sinks:   sinks,
		Workers: cfg.Workers,
	}
	_, runErr := runner.Run(cmd.Context(), ds, jobs)

	if cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return errors.Join(runErr, fmt.Errorf("write metrics: %w", err))
		}
	}
	return runErr
}

// resolveConfig layers defaults, the config file, the environment and the
// flags that were set explicitly.
func resolveConfig(cmd *cobra.Command, args []string, f *scoreFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}

	fl := cmd.Flags()
	if len(args) == 1 {
		cfg.Input = args[0]
	}
	if cfg.Input == "" {
		return nil, errors.New("no input file given")
	}

	if fl.Changed("limit") {
		if f.limit <= 0 {
			return nil, ErrNoRecords
		}
		cfg.Limit = f.limit
	}
	if fl.Changed("mode") {
		cfg.Mode = f.mode
	}
	if fl.Changed("format") {
		cfg.Format = f.format
	} else if f.configPath == "" {
		cfg.Format = detectFormat(cfg.Input)
	}
	if fl.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = f.textfile
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	applyAlgorithmFlags(cmd, cfg, f)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyAlgorithmFlags replaces the configured algorithms when any algorithm
// or threshold flag is set.
func applyAlgorithmFlags(cmd *cobra.Command, cfg *config.Config, f *scoreFlags) {
	fl := cmd.Flags()
	enabled := map[detectors.Algorithm]bool{
		detectors.LOF: f.lof,
		detectors.LSC: f.lsc,
		detectors.NN:  f.nn,
	}

	var selected []config.Algorithm
	for alg, on := range enabled {
		name := strings.ToLower(alg.String())
		var threshold *float64
		if fl.Changed(name + "-threshold") {
			v := f.thresholds[alg]
			threshold = &v
			on = true
		}
		if on {
			selected = append(selected, config.Algorithm{Name: name, Threshold: threshold})
		}
	}
	if len(selected) == 0 {
		return
	}

	cfg.Algorithms = nil
	for _, a := range selected {
		cfg.SetAlgorithm(a.Name, a.Threshold)
	}
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(pkgio.TrimCompression(path))) {
	case ".csv":
		return config.FormatCSV
	case ".pcap", ".pcapng", ".cap":
		return config.FormatPcap
	}
	return config.FormatFlow
}

func openReader(cfg *config.Config, logger *logging.Logger) (pkgio.Reader, error) {
	switch cfg.Format {
	case config.FormatCSV:
		return csv.NewReader(cfg.Input,
			csv.WithCategorical(cfg.CSV.Categorical...),
			csv.WithKey(cfg.CSV.Key),
			csv.WithTimestamp(cfg.CSV.Timestamp),
			csv.WithLogger(logger),
		)
	case config.FormatPcap:
		return pcap.NewFileReader(cfg.Input, pcap.WithWindow(cfg.Pcap.Window))
	}
	return flow.NewReader(cfg.Input,
		flow.WithLimit(cfg.Limit),
		flow.WithLogger(logger),
	)
}

func readDataset(cfg *config.Config, logger *logging.Logger) (*dataset.Dataset, error) {
	r, err := openReader(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer r.Close()

	ds, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if cfg.Format != config.FormatFlow && cfg.Limit > 0 {
		ds = ds.Head(cfg.Limit)
	}
	logger.Info("input loaded", "input", cfg.Input, "format", cfg.Format, "points", ds.Len())
	return ds, nil
}

func buildJobs(cfg *config.Config) ([]pipeline.Job, error) {
	mode, err := report.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	jobs := make([]pipeline.Job, 0, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		alg, err := detectors.ParseAlgorithm(a.Name)
		if err != nil {
			return nil, err
		}
		job := pipeline.Job{Algorithm: alg, Mode: mode}
		if a.Threshold != nil {
			job.Threshold = *a.Threshold
			job.HasThreshold = true
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return runOrder[jobs[i].Algorithm] < runOrder[jobs[j].Algorithm]
	})
	return jobs, nil
}
