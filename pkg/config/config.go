// Package config loads and validates the pipeline configuration file. A
// loaded Config is complete: defaults are applied, paths are set and the
// taxonomy is compiled, so nothing downstream re-validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/extractor"
	"github.com/dtnitsch/lda-transparency/pkg/fetcher"
	"github.com/dtnitsch/lda-transparency/pkg/tagger"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	BaseURL         string        `yaml:"base_url"`
	DataDir         string        `yaml:"data_dir"`
	CacheDir        string        `yaml:"cache_dir"`
	DatabasePath    string        `yaml:"database_path"`
	Workers         int           `yaml:"workers"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`

	Scraper    Scraper    `yaml:"scraper"`
	Extraction Extraction `yaml:"extraction"`
	Log        Log        `yaml:"log"`
	Sources    []Source   `yaml:"sources"`

	Topics map[string][]tagger.PatternSpec `yaml:"taxonomy"`

	// Taxonomy is compiled from Topics by Load.
	Taxonomy *tagger.Taxonomy `yaml:"-"`
}

type Scraper struct {
	UserAgent            string        `yaml:"user_agent"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	DelayBetweenRequests time.Duration `yaml:"delay_between_requests"`
	CacheTTL             time.Duration `yaml:"cache_ttl"`
}

type Extraction struct {
	DPI              int      `yaml:"dpi"`
	Languages        []string `yaml:"languages"`
	DensityThreshold float64  `yaml:"density_threshold"`
	SamplePages      int      `yaml:"sample_pages"`
	SegmentationMode int      `yaml:"segmentation_mode"`
	EngineMode       int      `yaml:"engine_mode"`
	OCRWorkers       int      `yaml:"ocr_workers"`
	Rasterizer       string   `yaml:"rasterizer"`
	Recognizer       string   `yaml:"recognizer"`
	TempDir          string   `yaml:"temp_dir"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Source is a named listing page scraped with `scrape --source`.
type Source struct {
	Name     string              `yaml:"name"`
	URL      string              `yaml:"url"`
	Selector string              `yaml:"selector"`
	Type     models.DocumentType `yaml:"type"`
	ForceOCR bool                `yaml:"force_ocr"`
}

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	return &Config{
		BaseURL:         "https://lda.gop.pk",
		DataDir:         "data/pdfs",
		CacheDir:        "data/cache",
		DatabasePath:    "lda_transparency.db",
		Workers:         2,
		DocumentTimeout: 10 * time.Minute,
		Scraper: Scraper{
			UserAgent:            "lda-transparency/1.0 (+civic research)",
			Timeout:              30 * time.Second,
			MaxRetries:           3,
			DelayBetweenRequests: time.Second,
			CacheTTL:             6 * time.Hour,
		},
		Extraction: Extraction{
			DPI:              300,
			Languages:        []string{"eng", "urd"},
			DensityThreshold: 50,
			SamplePages:      3,
			SegmentationMode: 3,
			EngineMode:       1,
			OCRWorkers:       2,
			Rasterizer:       "pdftoppm",
			Recognizer:       "tesseract",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, validates it and
// compiles the taxonomy.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Lists replace the defaults rather than merge with them.
	cfg.Extraction.Languages = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Extraction.Languages) == 0 {
		cfg.Extraction.Languages = Default().Extraction.Languages
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	taxonomy, err := tagger.NewTaxonomy(cfg.Topics)
	if err != nil {
		return nil, err
	}
	cfg.Taxonomy = taxonomy
	return cfg, nil
}

// Validate checks field ranges. Taxonomy problems are reported by Parse.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.DocumentTimeout <= 0 {
		errs = append(errs, fmt.Errorf("document_timeout must be positive, got %s", c.DocumentTimeout))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.Scraper.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("scraper.max_retries must not be negative, got %d", c.Scraper.MaxRetries))
	}

	e := c.Extraction
	if e.DPI < 72 || e.DPI > 1200 {
		errs = append(errs, fmt.Errorf("extraction.dpi must be between 72 and 1200, got %d", e.DPI))
	}
	if e.DensityThreshold < 0 {
		errs = append(errs, fmt.Errorf("extraction.density_threshold must not be negative, got %v", e.DensityThreshold))
	}
	if e.SamplePages < 0 {
		errs = append(errs, fmt.Errorf("extraction.sample_pages must not be negative, got %d", e.SamplePages))
	}
	if e.SegmentationMode < 0 || e.SegmentationMode > 13 {
		errs = append(errs, fmt.Errorf("extraction.segmentation_mode must be between 0 and 13, got %d", e.SegmentationMode))
	}
	if e.EngineMode < 0 || e.EngineMode > 3 {
		errs = append(errs, fmt.Errorf("extraction.engine_mode must be between 0 and 3, got %d", e.EngineMode))
	}
	if e.OCRWorkers < 1 {
		errs = append(errs, fmt.Errorf("extraction.ocr_workers must be at least 1, got %d", e.OCRWorkers))
	}
	for _, lang := range e.Languages {
		if strings.TrimSpace(lang) == "" || strings.Contains(lang, "+") {
			errs = append(errs, fmt.Errorf("extraction.languages: invalid entry %q", lang))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" || s.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name and url are required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if _, err := models.ParseDocumentType(string(s.Type)); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Source returns the named source.
func (c *Config) Source(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// ExtractorOptions maps the extraction section onto router options.
func (c *Config) ExtractorOptions() extractor.Options {
	e := c.Extraction
	return extractor.Options{
		DPI:              e.DPI,
		Languages:        e.Languages,
		DensityThreshold: e.DensityThreshold,
		SamplePages:      e.SamplePages,
		SegmentationMode: e.SegmentationMode,
		EngineMode:       e.EngineMode,
		OCRWorkers:       e.OCRWorkers,
		TempDir:          e.TempDir,
	}
}

// FetcherOptions maps the scraper section onto fetcher options.
func (c *Config) FetcherOptions() fetcher.Options {
	s := c.Scraper
	return fetcher.Options{
		UserAgent:  s.UserAgent,
		Timeout:    s.Timeout,
		MaxRetries: s.MaxRetries,
		Delay:      s.DelayBetweenRequests,
		Backoff:    time.Second,
	}
}
