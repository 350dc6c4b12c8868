package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dtnitsch/lda-transparency/internal/common"
	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/config"
	"github.com/dtnitsch/lda-transparency/pkg/detector"
	"github.com/dtnitsch/lda-transparency/pkg/extractor"
	"github.com/dtnitsch/lda-transparency/pkg/pipeline"
	"github.com/dtnitsch/lda-transparency/pkg/tagger"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const defaultSelector = "a[href$='.pdf'], a[href$='.PDF']"

// runConfig reads the flags shared by scrape and process.
func runConfig(c *cli.Context) (models.RunConfig, error) {
	run := models.RunConfig{
		Workers:  c.Int("workers"),
		ForceOCR: c.Bool("force-ocr"),
		Limit:    c.Int("limit"),
	}
	if t := c.String("type"); t != "" {
		docType, err := models.ParseDocumentType(t)
		if err != nil {
			return run, err
		}
		run.DocumentType = docType
	}
	return run, nil
}

// scrapeRequest merges a named source with explicit flags. Flags win.
func scrapeRequest(c *cli.Context, cfg *config.Config, run *models.RunConfig) (pipeline.ScrapeRequest, error) {
	req := pipeline.ScrapeRequest{
		URL:      c.String("url"),
		Selector: c.String("selector"),
		Type:     run.DocumentType,
		Limit:    run.Limit,
		Refresh:  c.Bool("refresh"),
		MaxPages: c.Int("max-pages"),
	}
	if years := c.String("year"); years != "" {
		from, to, err := models.ParseYearRange(years)
		if err != nil {
			return req, err
		}
		req.FromYear, req.ToYear = from, to
	}
	if name := c.String("source"); name != "" {
		src, ok := cfg.Source(name)
		if !ok {
			return req, fmt.Errorf("unknown source %q", name)
		}
		if req.URL == "" {
			req.URL = src.URL
		}
		if req.Selector == "" {
			req.Selector = src.Selector
		}
		if req.Type == "" {
			req.Type = src.Type
		}
		if src.ForceOCR && !c.IsSet("force-ocr") {
			run.ForceOCR = true
		}
	}
	if req.URL == "" {
		return req, errors.New("--url or --source is required")
	}
	if req.Type == "" && req.FromYear > 0 {
		req.Type = models.TypeMeetingMinutes
	}
	if req.Type == "" {
		return req, errors.New("--type is required with --url")
	}
	if req.Selector == "" {
		req.Selector = defaultSelector
	}
	return req, nil
}

// ScrapeAction fetches a listing page, downloads the linked PDFs and
// processes every new or changed document.
func ScrapeAction(c *cli.Context) error {
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()
	logger := env.Logger

	run, err := runConfig(c)
	if err != nil {
		return common.Fatal(logger, "Invalid flags", err)
	}
	req, err := scrapeRequest(c, env.Config, &run)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: lda scrape --source <name> | --url <listing> --type <type> [--selector <css>] [--year <yyyy[-yyyy]>]")
		return common.Fatal(logger, "Invalid flags", err)
	}

	proc := env.NewProcessor(run)
	collector, err := env.NewCollector(proc)
	if err != nil {
		return common.Fatal(logger, "Setup failed", err)
	}

	logger.Info("Scraping listing", "url", req.URL, "type", req.Type, "force_ocr", run.ForceOCR, "from_year", req.FromYear, "to_year", req.ToYear)
	docs, results, err := collector.Collect(c.Context, req)
	if err != nil {
		return common.Fatal(logger, "Scrape failed", err)
	}
	results = append(results, proc.ProcessAll(c.Context, docs)...)

	if len(results) == 0 {
		fmt.Println("No new or changed documents.")
		return nil
	}
	common.RenderResults(os.Stdout, results)
	if code := pipeline.ExitCode(results); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// ProcessAction processes local PDFs given as arguments, or stored documents
// selected with --pending / --retry-failed.
func ProcessAction(c *cli.Context) error {
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()
	logger := env.Logger
	ctx := c.Context

	run, err := runConfig(c)
	if err != nil {
		return common.Fatal(logger, "Invalid flags", err)
	}

	var docs []models.Document
	switch {
	case c.NArg() > 0:
		docType := run.DocumentType
		if docType == "" {
			docType = models.TypeRegulation
		}
		for _, path := range c.Args().Slice() {
			doc, err := pipeline.RegisterFile(ctx, env.DB, path, docType)
			if err != nil {
				return common.Fatal(logger, "Failed to register file", err)
			}
			if doc.Status == models.StatusProcessed {
				logger.Info("Document unchanged, skipping", "path", path, "id", doc.ID)
				continue
			}
			docs = append(docs, *doc)
		}

	case c.Bool("pending") || c.Bool("retry-failed"):
		if c.Bool("retry-failed") {
			n, err := env.DB.ResetFailed(ctx)
			if err != nil {
				return common.Fatal(logger, "Failed to reset failed documents", err)
			}
			logger.Info("Reset failed documents", "count", n)
		}
		pending, err := env.DB.ListDocumentsByStatus(ctx, models.StatusUnprocessed, 0)
		if err != nil {
			return common.Fatal(logger, "Failed to list documents", err)
		}
		for _, doc := range pending {
			if run.DocumentType != "" && doc.Type != run.DocumentType {
				continue
			}
			docs = append(docs, doc)
		}

	default:
		fmt.Fprintln(os.Stderr, "Usage: lda process <file.pdf>... | --pending | --retry-failed")
		return cli.Exit("", 2)
	}

	if run.Limit > 0 && len(docs) > run.Limit {
		docs = docs[:run.Limit]
	}
	if len(docs) == 0 {
		fmt.Println("Nothing to process.")
		return nil
	}

	results := env.NewProcessor(run).ProcessAll(ctx, docs)
	common.RenderResults(os.Stdout, results)
	if code := pipeline.ExitCode(results); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// RetagAction recomputes tags from stored pages after a taxonomy change.
func RetagAction(c *cli.Context) error {
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()

	changes, err := env.NewProcessor(models.RunConfig{}).Retag(c.Context, c.Bool("all"))
	if err != nil {
		return common.Fatal(env.Logger, "Retag failed", err)
	}
	if len(changes) == 0 {
		fmt.Println("All documents are tagged with the current taxonomy.")
		return nil
	}

	t := common.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"ID", "URL", "Before", "After"})
	changed := 0
	for _, r := range changes {
		if !r.Changed() {
			continue
		}
		changed++
		t.AppendRow(table.Row{r.DocumentID, common.Truncate(r.URL, 50), joinOrDash(r.Before), joinOrDash(r.After)})
	}
	if changed > 0 {
		t.Render()
	}
	fmt.Printf("%d documents retagged, %d with different topics\n", len(changes), changed)
	return nil
}

// Report is the dry-run output of ExtractAction.
type Report struct {
	File       string                 `json:"file" yaml:"file"`
	Mode       models.ExtractionMode  `json:"mode" yaml:"mode"`
	Density    float64                `json:"density" yaml:"density"`
	PageCount  int                    `json:"page_count" yaml:"page_count"`
	Title      string                 `json:"title,omitempty" yaml:"title,omitempty"`
	Author     string                 `json:"author,omitempty" yaml:"author,omitempty"`
	Language   string                 `json:"language,omitempty" yaml:"language,omitempty"`
	Confidence float64                `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Tags       []models.TagAssignment `json:"tags" yaml:"tags"`
	Evidence   map[string][]string    `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Summary    string                 `json:"summary" yaml:"summary"`
	Pages      []models.Page          `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// ExtractAction routes, extracts and tags one PDF without touching the
// database.
func ExtractAction(c *cli.Context) error {
	env, err := common.Setup(c, false)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()
	logger := env.Logger

	if c.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lda extract <file.pdf> [--force-ocr] [--format yaml|json]")
		return cli.Exit("", 2)
	}
	format := strings.ToLower(c.String("format"))
	if format != "yaml" && format != "json" {
		return common.Fatal(logger, "Invalid flags", fmt.Errorf("unknown format %q (valid: yaml, json)", format))
	}

	path := c.Args().First()
	result, err := common.NewRouter(env.Config).Extract(c.Context, extractor.Request{Path: path, ForceOCR: c.Bool("force-ocr")})
	if err != nil {
		logger.Error("Extraction failed", "path", path, "error", err)
		return cli.Exit(err.Error(), 1)
	}
	report := buildReport(env, path, result, c.Int("evidence"), !c.Bool("no-pages"))

	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Println(string(data))
	default:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_ = enc.Close()
	}
	fmt.Fprintln(os.Stderr, report.Summary)
	return nil
}

func buildReport(env *common.Env, path string, result *extractor.Result, evidence int, withPages bool) Report {
	if det := common.NewDetector(env.Config, env.Logger); det != nil {
		det.Annotate(result.Pages)
	}
	tax := env.Config.Taxonomy
	tags := tax.TagPages(result.Pages)

	report := Report{
		File:       path,
		Mode:       result.Mode,
		Density:    result.Density,
		PageCount:  result.PageCount,
		Title:      result.Title,
		Author:     result.Author,
		Language:   detector.Dominant(result.Pages),
		Confidence: models.MeanConfidence(result.Pages),
		Tags:       tags,
		Summary:    tagger.Summary(tags),
	}
	if withPages {
		report.Pages = result.Pages
	}
	if evidence > 0 && len(tags) > 0 {
		text := models.JoinPages(result.Pages)
		report.Evidence = make(map[string][]string, len(tags))
		for _, tag := range tags {
			for _, s := range tax.Evidence(text, tag.Topic, 60, evidence) {
				report.Evidence[tag.Topic] = append(report.Evidence[tag.Topic], s.Context)
			}
		}
	}
	return report
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
