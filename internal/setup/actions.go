package setup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dtnitsch/lda-transparency/internal/common"
	"github.com/dtnitsch/lda-transparency/pkg/db"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

// InitAction creates the database schema and the data directories.
func InitAction(c *cli.Context) error {
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()

	cfg := env.Config
	for _, dir := range []string{cfg.DataDir, cfg.CacheDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.Fatal(env.Logger, "Failed to create directory", err)
		}
	}
	if err := env.DB.InitSchema(); err != nil {
		return common.Fatal(env.Logger, "Failed to initialize schema", err)
	}

	env.Logger.Info("Initialized", "database", env.DB.Path(), "data_dir", cfg.DataDir, "cache_dir", cfg.CacheDir)
	fmt.Printf("Database ready: %s\n", env.DB.Path())
	fmt.Printf("PDFs will be stored in: %s\n", cfg.DataDir)
	return nil
}

// CheckAction reports whether the configuration, database and OCR backends
// are usable. A failed check exits 1; an unreadable config exits 2.
func CheckAction(c *cli.Context) error {
	env, err := common.Setup(c, false)
	if err != nil {
		return common.Fatal(nil, "Configuration invalid", err)
	}
	defer env.Close()

	cfg := env.Config
	t := common.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Check", "Status", "Detail"})
	failed := false
	row := func(name string, err error, detail string) {
		status := "ok"
		if err != nil {
			status = "FAIL"
			detail = err.Error()
			failed = true
		}
		t.AppendRow(table.Row{name, status, detail})
	}

	row("config", nil, fmt.Sprintf("%d topics, taxonomy %s", len(cfg.Taxonomy.Topics()), shortHash(cfg.Taxonomy.Fingerprint())))

	if db.Exists(cfg.DatabasePath) {
		row("database", nil, cfg.DatabasePath)
	} else {
		row("database", fmt.Errorf("%s not found, run 'lda init'", cfg.DatabasePath), "")
	}

	raster, recog := common.Backends(cfg)
	row("rasterizer", raster.Available(), cfg.Extraction.Rasterizer)
	recogErr := recog.Available()
	row("recognizer", recogErr, cfg.Extraction.Recognizer)

	if recogErr == nil {
		ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
		defer cancel()
		missing, err := recog.MissingLanguages(ctx, cfg.Extraction.Languages)
		switch {
		case err != nil:
			row("languages", err, "")
		case len(missing) > 0:
			row("languages", fmt.Errorf("missing language data: %s", strings.Join(missing, ", ")), "")
		default:
			row("languages", nil, strings.Join(cfg.Extraction.Languages, "+"))
		}
	}

	t.Render()
	if failed {
		return cli.Exit("", 1)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
