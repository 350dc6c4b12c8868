package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dtnitsch/lda-transparency/internal/db"
	"github.com/dtnitsch/lda-transparency/internal/process"
	"github.com/dtnitsch/lda-transparency/internal/setup"
	"github.com/dtnitsch/lda-transparency/pkg/config"
	"github.com/dtnitsch/lda-transparency/pkg/pipeline"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lda",
		Usage: "Collect, extract and tag LDA transparency documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"LDA_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path (overrides database_path)",
				EnvVars: []string{"LDA_DB"},
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address (e.g. :9100)",
				EnvVars: []string{"LDA_METRICS_ADDR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the database schema and data directories",
				Action: setup.InitAction,
			},
			{
				Name:   "check",
				Usage:  "Verify configuration, database and OCR backends",
				Action: setup.CheckAction,
			},
			{
				Name:  "scrape",
				Usage: "Download PDFs linked from a listing page and process them",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Named source from the config file"},
					&cli.StringFlag{Name: "url", Usage: "Listing page URL"},
					&cli.StringFlag{Name: "selector", Usage: "CSS selector for document links"},
					&cli.BoolFlag{Name: "refresh", Usage: "Download files again even if present on disk"},
					&cli.StringFlag{Name: "year", Usage: "Read the listing as the paginated meetings table for a year or range (2019, 2019-2023)"},
					&cli.IntFlag{Name: "max-pages", Value: pipeline.DefaultMaxPages, Usage: "Pages read per year with --year"},
					typeFlag(), forceOCRFlag(), workersFlag(), limitFlag(),
				},
				Action: process.ScrapeAction,
			},
			{
				Name:      "process",
				Usage:     "Process local PDFs or stored documents",
				ArgsUsage: "[file.pdf...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pending", Usage: "Process stored documents that are not processed yet"},
					&cli.BoolFlag{Name: "retry-failed", Usage: "Reset failed documents and process them again"},
					typeFlag(), forceOCRFlag(), workersFlag(), limitFlag(),
				},
				Action: process.ProcessAction,
			},
			{
				Name:  "retag",
				Usage: "Recompute topic tags from stored pages",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Retag every processed document, not only stale ones"},
				},
				Action: process.RetagAction,
			},
			{
				Name:      "extract",
				Usage:     "Extract and tag one PDF without storing anything",
				ArgsUsage: "<file.pdf>",
				Flags: []cli.Flag{
					forceOCRFlag(),
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "yaml", Usage: "Output format: yaml or json"},
					&cli.IntFlag{Name: "evidence", Value: 3, Usage: "Context snippets per topic (0 = none)"},
					&cli.BoolFlag{Name: "no-pages", Usage: "Omit page text from the output"},
				},
				Action: process.ExtractAction,
			},
			{
				Name:      "search",
				Usage:     "Full-text search over extracted pages",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic", Usage: "Only documents tagged with this topic"},
					typeFlag(),
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of hits"},
					&cli.BoolFlag{Name: "raw", Usage: "Pass the query to FTS5 unchanged (OR, NEAR, prefix*)"},
				},
				Action: db.SearchAction,
			},
			{
				Name:  "stats",
				Usage: "Totals by type, status, mode and topic",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top", Value: 10, Usage: "Number of topics to list (0 = all)"},
				},
				Action: db.StatsAction,
			},
			{
				Name:      "show",
				Usage:     "Show one document with its tags and pages",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-pages", Usage: "Omit page text"},
				},
				Action: db.ShowAction,
			},
		},
	}
}

func typeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "type",
		Usage: "Document type: regulation, meeting-minutes, housing-scheme, tender",
	}
}

func forceOCRFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "force-ocr",
		Usage: "Skip text-layer detection and OCR every page of new documents",
	}
}

func workersFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "workers",
		Usage: "Documents processed concurrently (default from config)",
	}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of documents to handle (0 = all)",
	}
}
