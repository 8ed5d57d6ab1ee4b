package multitable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sparkify/internal/config"
	"sparkify/internal/datasource/file"
	"sparkify/internal/etlerr"
	"sparkify/internal/metrics"
	parserjson "sparkify/internal/parser/json"
	"sparkify/internal/storage"
	"sparkify/internal/transformer"
)

// Runner drives one batch run: both datasets, one transaction per file.
type Runner struct {
	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// ListFiles returns the input files under root in processing order.
	ListFiles func(ctx context.Context, root string) ([]string, error)

	Logger *zap.Logger
}

// NewDefaultRunner wires the registered storage backends and the file lister.
func NewDefaultRunner(logger *zap.Logger) *Runner {
	return &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return storage.New(ctx, cfg)
		},
		ListFiles: file.ListJSON,
		Logger:    logger,
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run validates p, opens the repository, ensures the tables, and loads every
// song file and then every log file.
//
// Failed files are recorded in Summary.Failures. With on_file_error=abort the
// first failed file ends the run and its error is returned; files committed
// before it stay committed. With skip the run returns a joined error after the
// last file. A cancelled ctx always ends the run.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (sum Summary, err error) {
	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	if err = validatePipeline(p); err != nil {
		return sum, err
	}
	log := r.logger().With(zap.String("job", p.Job))

	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	repo, err := newRepo(ctx, storage.Config{
		Kind:              p.Storage.Kind,
		DSN:               p.Storage.DSN,
		DurationTolerance: p.Transform.DurationTolerance,
	})
	if err != nil {
		var ce *etlerr.ConnectionError
		if !errors.As(err, &ce) {
			err = &etlerr.ConnectionError{Kind: p.Storage.Kind, Err: err}
		}
		return sum, err
	}
	defer repo.Close()

	t0 := time.Now()
	err = repo.EnsureTables(ctx, storage.StarSchema(p.Storage.AutoCreateTable))
	metrics.RecordStep(p.Job, stepEnsureTables, err, time.Since(t0))
	if err != nil {
		return sum, fmt.Errorf("ensure tables: %w", err)
	}

	b := &batch{
		job:    p.Job,
		repo:   repo,
		engine: &Engine{Logger: log},
		tr:     transformer.Transformer{NormalizeText: p.Transform.NormalizeText},
		skip:   p.Runtime.OnFileError == config.OnFileErrorSkip,
		log:    log,
		sum:    &sum,
	}

	list := r.ListFiles
	if list == nil {
		list = file.ListJSON
	}

	songFiles, err := list(ctx, p.Source.SongData)
	if err != nil {
		return sum, fmt.Errorf("list %s: %w", DatasetSongs, err)
	}
	if err := b.each(ctx, DatasetSongs, p.Source.SongData, songFiles, b.songFile); err != nil {
		return sum, err
	}

	logFiles, err := list(ctx, p.Source.LogData)
	if err != nil {
		return sum, fmt.Errorf("list %s: %w", DatasetLogs, err)
	}
	if err := b.each(ctx, DatasetLogs, p.Source.LogData, logFiles, b.logFile); err != nil {
		return sum, err
	}

	log.Info("run complete",
		zap.Int("song_files", sum.SongFiles),
		zap.Int("log_files", sum.LogFiles),
		zap.Int("songs", sum.Songs),
		zap.Int("artists", sum.Artists),
		zap.Int("users", sum.Users),
		zap.Int("time", sum.Times),
		zap.Int("songplays", sum.Songplays),
		zap.Int("songplays_existing", sum.SongplaysExisting),
		zap.Int("songplays_unmatched", sum.SongplaysUnmatched),
		zap.Int("events_skipped", sum.EventsSkipped),
		zap.Int("files_failed", len(sum.Failures)),
	)

	if len(sum.Failures) > 0 {
		errs := make([]error, 0, len(sum.Failures))
		for _, f := range sum.Failures {
			errs = append(errs, f.Err)
		}
		return sum, fmt.Errorf("%d files failed: %w", len(sum.Failures), errors.Join(errs...))
	}
	return sum, nil
}

func validatePipeline(p config.Pipeline) error {
	var errs []error
	for _, is := range config.ValidatePipeline(p) {
		if is.Severity == config.SeverityError {
			errs = append(errs, is)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid pipeline: %w", errors.Join(errs...))
	}
	return nil
}

type batch struct {
	job    string
	repo   storage.Repository
	engine *Engine
	tr     transformer.Transformer
	skip   bool
	log    *zap.Logger
	sum    *Summary
}

type loadFunc func(ctx context.Context, path string) (FileStats, error)

func (b *batch) each(ctx context.Context, dataset, root string, paths []string, load loadFunc) error {
	step := stepSongFile
	if dataset == DatasetLogs {
		step = stepLogFile
	}

	b.log.Info(fmt.Sprintf("%d files found in %s", len(paths), root), zap.String("dataset", dataset))

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		t0 := time.Now()
		st, err := load(ctx, path)
		metrics.RecordStep(b.job, step, err, time.Since(t0))

		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			metrics.RecordRow(b.job, "files_failed", 1)
			b.sum.Failures = append(b.sum.Failures, FileFailure{Dataset: dataset, Path: path, Err: err})
			if !b.skip {
				b.log.Error("file failed", zap.String("dataset", dataset), zap.String("path", path), zap.Error(err))
				return fmt.Errorf("%s %s: %w", dataset, path, err)
			}
			b.log.Warn("file skipped", zap.String("dataset", dataset), zap.String("path", path), zap.Error(err))
			continue
		}

		b.sum.add(st)
		if dataset == DatasetSongs {
			b.sum.SongFiles++
		} else {
			b.sum.LogFiles++
		}
		recordStats(b.job, st)
		metrics.RecordFiles(b.job, dataset, 1)

		b.log.Info(fmt.Sprintf("%d/%d files processed.", i+1, len(paths)), zap.String("dataset", dataset))
	}
	return nil
}

func (b *batch) songFile(ctx context.Context, path string) (FileStats, error) {
	rec, err := parserjson.ParseSongFile(ctx, path)
	if err != nil {
		return FileStats{}, err
	}
	f, err := b.tr.SongFile(path, rec)
	if err != nil {
		return FileStats{}, err
	}
	return b.inTx(ctx, func(tx storage.Tx) (FileStats, error) {
		return b.engine.LoadSongFile(ctx, tx, f)
	})
}

func (b *batch) logFile(ctx context.Context, path string) (FileStats, error) {
	recs, err := parserjson.ParseLogFile(ctx, path)
	if err != nil {
		return FileStats{}, err
	}
	f, err := b.tr.LogFile(path, recs)
	if err != nil {
		return FileStats{}, err
	}
	return b.inTx(ctx, func(tx storage.Tx) (FileStats, error) {
		return b.engine.LoadLogFile(ctx, tx, f)
	})
}

// inTx runs fn in a fresh transaction and commits it. Any failure rolls the
// whole file back.
func (b *batch) inTx(ctx context.Context, fn func(tx storage.Tx) (FileStats, error)) (FileStats, error) {
	tx, err := b.repo.Begin(ctx)
	if err != nil {
		return FileStats{}, err
	}

	st, err := fn(tx)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			b.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return FileStats{}, err
	}
	return st, nil
}

func recordStats(job string, st FileStats) {
	metrics.RecordRow(job, "songs", int64(st.Songs))
	metrics.RecordRow(job, "artists", int64(st.Artists))
	metrics.RecordRow(job, "users", int64(st.Users))
	metrics.RecordRow(job, "time", int64(st.Times))
	metrics.RecordRow(job, "songplays", int64(st.Songplays))
	metrics.RecordRow(job, "songplays_unmatched", int64(st.SongplaysUnmatched))
	metrics.RecordRow(job, "events_skipped", int64(st.EventsSkipped))
}
