// Command etl loads the song and activity datasets into the star schema.
//
//	etl --config configs/pipelines/sparkify.yaml
//	etl --storage sqlite --dsn sparkify.db --song-data data/song_data --log-data data/log_data
//	etl validate --config configs/pipelines/sparkify.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sparkify/internal/config"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/metrics/prompush"
	"sparkify/internal/multitable"

	// register all backends with the storage factory.
	_ "sparkify/internal/storage/all"
)

const defaultPushgatewayURL = "http://localhost:9091"

type runner interface {
	Run(ctx context.Context, p config.Pipeline) (multitable.Summary, error)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadConfig  func(path string) (config.Pipeline, error)
	newLogger   func(level, format string) (*zap.Logger, error)
	initMetrics func(ctx context.Context, jobName string, m config.Metrics) (func(), error)
	newRunner   func(logger *zap.Logger) runner
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logging.New,
		initMetrics: initMetrics,
		newRunner:   func(logger *zap.Logger) runner { return multitable.NewDefaultRunner(logger) },
	}
}

// usageError marks bad command-line input; the usage line is printed after it.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain executes the CLI and returns the process exit code: 0 on success,
// 1 on any failure.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	cmd := newRootCmd(deps)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "usage: %s\n", cmd.UseLine())
	}
	return 1
}

type cliFlags struct {
	configPath     string
	songData       string
	logData        string
	storageKind    string
	dsn            string
	onFileError    string
	tolerance      float64
	metricsBackend string
	logLevel       string
	verbose        bool
}

func newRootCmd(deps appDeps) *cobra.Command {
	var f cliFlags

	root := &cobra.Command{
		Use:           "etl",
		Short:         "Load song metadata and activity logs into the sparkify star schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unexpected argument %q", args[0])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePipeline(cmd, deps, f)
			if err != nil {
				return err
			}
			if err := reportIssues(cmd.ErrOrStderr(), p); err != nil {
				return err
			}
			return runPipeline(cmd, deps, f, p)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "pipeline config (JSON or YAML); defaults apply when empty")
	pf.StringVar(&f.songData, "song-data", "", "song metadata root (overrides source.song_data)")
	pf.StringVar(&f.logData, "log-data", "", "activity log root (overrides source.log_data)")
	pf.StringVar(&f.storageKind, "storage", "", "storage backend: postgres|sqlite|mssql|mysql (overrides storage.kind)")
	pf.StringVar(&f.dsn, "dsn", "", "database DSN (overrides storage.dsn)")
	pf.StringVar(&f.onFileError, "on-file-error", "", "abort|skip (overrides runtime.on_file_error)")
	pf.Float64Var(&f.tolerance, "duration-tolerance", 0, "max |duration - length| in seconds for a song match")

	root.Flags().StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none|pushgateway|datadog (overrides METRICS_BACKEND and metrics.backend)")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides log.level)")
	root.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newValidateCmd(deps, &f))
	return root
}

func newValidateCmd(deps appDeps, f *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePipeline(cmd, deps, *f)
			if err != nil {
				return err
			}
			if err := reportIssues(cmd.ErrOrStderr(), p); err != nil {
				return err
			}
			name := f.configPath
			if name == "" {
				name = "<defaults>"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", name)
			return nil
		},
	}
}

// resolvePipeline loads the config file (or defaults) and applies flag
// overrides. Only flags the user set take effect.
func resolvePipeline(cmd *cobra.Command, deps appDeps, f cliFlags) (config.Pipeline, error) {
	p := config.Default()
	if f.configPath != "" {
		if strings.TrimSpace(f.configPath) == "" {
			return p, usageError{errors.New("--config must not be blank")}
		}
		var err error
		if p, err = deps.loadConfig(f.configPath); err != nil {
			return p, fmt.Errorf("read config: %w", err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("song-data") {
		p.Source.SongData = f.songData
	}
	if changed("log-data") {
		p.Source.LogData = f.logData
	}
	if changed("storage") {
		p.Storage.Kind = f.storageKind
	}
	if changed("dsn") {
		p.Storage.DSN = os.ExpandEnv(f.dsn)
	}
	if changed("on-file-error") {
		p.Runtime.OnFileError = f.onFileError
	}
	if changed("duration-tolerance") {
		p.Transform.DurationTolerance = f.tolerance
	}

	// flag → env → config
	switch {
	case f.metricsBackend != "":
		p.Metrics.Backend = f.metricsBackend
	case os.Getenv("METRICS_BACKEND") != "":
		p.Metrics.Backend = os.Getenv("METRICS_BACKEND")
	}
	if p.Metrics.PushgatewayURL == "" {
		p.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if p.Metrics.Backend == config.MetricsPushgateway && p.Metrics.PushgatewayURL == "" {
		p.Metrics.PushgatewayURL = defaultPushgatewayURL
	}

	if f.logLevel != "" {
		p.Log.Level = f.logLevel
	}
	if f.verbose {
		p.Log.Level = "debug"
	}
	return p, nil
}

func reportIssues(w io.Writer, p config.Pipeline) error {
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintln(w, iss.Error())
	}
	if config.HasErrors(issues) {
		return errors.New("configuration is invalid")
	}
	return nil
}

func runPipeline(cmd *cobra.Command, deps appDeps, f cliFlags, p config.Pipeline) error {
	ctx := cmd.Context()

	logger, err := deps.newLogger(p.Log.Level, p.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cleanup, err := deps.initMetrics(ctx, p.Job, p.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer cleanup()

	logger.Debug("pipeline",
		zap.String("config", f.configPath),
		zap.String("song_data", p.Source.SongData),
		zap.String("log_data", p.Source.LogData),
		zap.String("storage", p.Storage.Kind),
		zap.String("on_file_error", p.Runtime.OnFileError),
		zap.Float64("duration_tolerance", p.Transform.DurationTolerance),
		zap.String("metrics", p.Metrics.Backend),
	)

	sum, err := deps.newRunner(logger).Run(ctx, p)
	printSummary(cmd.OutOrStdout(), sum)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, s multitable.Summary) {
	fmt.Fprintf(w, "files: song_data=%d log_data=%d failed=%d\n", s.SongFiles, s.LogFiles, len(s.Failures))
	fmt.Fprintf(w, "rows: songs=%d artists=%d users=%d time=%d songplays=%d (existing=%d unmatched=%d)\n",
		s.Songs, s.Artists, s.Users, s.Times, s.Songplays, s.SongplaysExisting, s.SongplaysUnmatched)
	fmt.Fprintf(w, "events skipped: %d\n", s.EventsSkipped)
	fmt.Fprintf(w, "completed in %s\n", s.Duration.Truncate(time.Millisecond))
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newPushBackend = func(jobName, url string) (metricsBackend, error) {
		b, err := prompush.NewBackend(jobName, url)
		if err != nil {
			return nil, err
		}
		return pushCloser{b}, nil
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// metricsBackend is a metrics.Backend that must be closed to submit what it
// buffered.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// pushCloser pushes once on Close.
type pushCloser struct{ *prompush.Backend }

func (p pushCloser) Close() error { return p.Flush() }

// initMetrics installs the configured backend and returns a cleanup that
// submits buffered metrics and restores the no-op backend. The cleanup is
// always non-nil.
func initMetrics(ctx context.Context, jobName string, m config.Metrics) (func(), error) {
	noop := func() {}

	var (
		b    metricsBackend
		err  error
		name = m.Backend
	)
	switch name {
	case "", config.MetricsNone:
		return noop, nil

	case config.MetricsPushgateway:
		url := m.PushgatewayURL
		if url == "" {
			url = defaultPushgatewayURL
		}
		b, err = newPushBackend(jobName, url)

	case config.MetricsDatadog:
		every, perr := m.FlushInterval()
		if perr != nil {
			return noop, perr
		}
		tags := append(append([]string(nil), m.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err = newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: every,
		})

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (none|pushgateway|datadog)", name)
	}
	if err != nil {
		return noop, err
	}

	setMetricsBackend(b)
	return func() {
		if err := b.Close(); err != nil {
			logPrintf("metrics: %s close error: %v", name, err)
		}
		setMetricsBackend(nil)
	}, nil
}
