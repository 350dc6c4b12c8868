// Package common holds the setup shared by every command: configuration,
// logging, the database and the extraction components built from them.
package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/caching"
	"github.com/dtnitsch/lda-transparency/pkg/config"
	"github.com/dtnitsch/lda-transparency/pkg/db"
	"github.com/dtnitsch/lda-transparency/pkg/detector"
	"github.com/dtnitsch/lda-transparency/pkg/extractor"
	"github.com/dtnitsch/lda-transparency/pkg/fetcher"
	"github.com/dtnitsch/lda-transparency/pkg/metrics"
	"github.com/dtnitsch/lda-transparency/pkg/ocr"
	"github.com/dtnitsch/lda-transparency/pkg/pipeline"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
	"github.com/urfave/cli/v2"
)

// Env is what a command works with once setup succeeded.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *db.DB

	closeLog func()
}

// LoadConfig reads --config. A missing default config file falls back to the
// built-in defaults; a missing file that was asked for explicitly is an error.
// --db overrides database_path.
func LoadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || c.IsSet("config") {
			return nil, err
		}
		if cfg, err = config.Parse(nil); err != nil {
			return nil, err
		}
	}
	if dbPath := c.String("db"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// Setup loads the configuration, builds the logger and, when openDB is set,
// opens the database. It also starts the metrics endpoint if --metrics-addr
// was given.
func Setup(c *cli.Context, openDB bool) (*Env, error) {
	cfg, err := LoadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog := NewLogger(cfg.Log.Level, cfg.Log.File, c.Bool("quiet"))
	slog.SetDefault(logger)
	env := &Env{Config: cfg, Logger: logger, closeLog: closeLog}

	if addr := c.String("metrics-addr"); addr != "" {
		go metrics.ExposeMetrics(addr)
	}

	if openDB {
		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			closeLog()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		env.DB = database
	}
	return env, nil
}

// Close releases the database and the log file.
func (e *Env) Close() {
	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			e.Logger.Warn("Failed to close database", "error", err)
		}
	}
	e.closeLog()
}

// Fatal logs err and returns the exit error for a setup failure.
func Fatal(logger *slog.Logger, msg string, err error) error {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	logger.Error(msg, "error", err)
	return cli.Exit(fmt.Sprintf("%s: %v", msg, err), 2)
}

// Backends returns the OCR backends named in the configuration.
func Backends(cfg *config.Config) (ocr.Pdftoppm, ocr.Tesseract) {
	return ocr.Pdftoppm{Binary: cfg.Extraction.Rasterizer}, ocr.Tesseract{Binary: cfg.Extraction.Recognizer}
}

// NewRouter builds the extraction router with the PDF text layer and the
// configured OCR backends.
func NewRouter(cfg *config.Config) *extractor.Router {
	raster, recog := Backends(cfg)
	return extractor.NewRouter(cfg.ExtractorOptions(), extractor.PDFTextLayer{}, raster, recog)
}

// NewDetector builds the page language detector. Detection is an annotation;
// when the configured languages cannot be mapped the pipeline runs without it.
func NewDetector(cfg *config.Config, logger *slog.Logger) *detector.Detector {
	det, err := detector.New(cfg.Extraction.Languages)
	if err != nil {
		logger.Warn("Language detection disabled", "error", err)
		return nil
	}
	return det
}

// NewProcessor wires the router, taxonomy and detector into a pipeline.
// run.Workers overrides the configured worker count when positive.
func (e *Env) NewProcessor(run models.RunConfig) *pipeline.Processor {
	workers := e.Config.Workers
	if run.Workers > 0 {
		workers = run.Workers
	}
	return pipeline.New(e.DB, NewRouter(e.Config), e.Config.Taxonomy, NewDetector(e.Config, e.Logger), pipeline.Options{
		Workers:         workers,
		DocumentTimeout: e.Config.DocumentTimeout,
		ForceOCR:        run.ForceOCR,
	}, e.Logger)
}

// NewCollector wires the fetcher, listing cache and PDF storage for scraping.
func (e *Env) NewCollector(proc *pipeline.Processor) (*pipeline.Collector, error) {
	cache, err := caching.NewCache(e.Config.CacheDir, e.Config.Scraper.CacheTTL)
	if err != nil {
		return nil, err
	}
	if removed, err := cache.Prune(); err != nil {
		e.Logger.Warn("Failed to prune listing cache", "error", err)
	} else if removed > 0 {
		e.Logger.Debug("Pruned listing cache", "removed", removed)
	}
	store, err := storage.New(e.Config.DataDir)
	if err != nil {
		return nil, err
	}
	return pipeline.NewCollector(e.DB, fetcher.NewFetcher(e.Config.FetcherOptions(), cache), store, proc), nil
}
