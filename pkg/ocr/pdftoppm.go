// Package ocr wires the extractor to the poppler and tesseract command line
// tools. Both are looked up on PATH unless a binary is configured.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dtnitsch/lda-transparency/pkg/extractor"
)

// Pdftoppm renders PDF pages to PNG with poppler's pdftoppm.
type Pdftoppm struct {
	Binary string // defaults to "pdftoppm"
}

func (p Pdftoppm) binary() string {
	if p.Binary == "" {
		return "pdftoppm"
	}
	return p.Binary
}

// Available reports whether the binary can be found.
func (p Pdftoppm) Available() error {
	return lookPath(p.binary())
}

// Rasterize renders a single page at dpi into dir and returns the image path.
func (p Pdftoppm) Rasterize(ctx context.Context, path string, page, dpi int, dir string) (string, error) {
	prefix := filepath.Join(dir, fmt.Sprintf("page-%04d", page))
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binary(),
		"-r", strconv.Itoa(dpi),
		"-f", n, "-l", n,
		"-png", "-singlefile",
		path, prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", runError(ctx, p.binary(), err, stderr.String())
	}
	return prefix + ".png", nil
}

func lookPath(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return &extractor.BackendUnavailableError{Backend: filepath.Base(binary), Err: err}
	}
	return nil
}

// runError turns a failed command into the error the router expects: a
// missing binary is a backend problem, a cancelled context is returned as is,
// anything else carries the tool's stderr.
func runError(ctx context.Context, binary string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return &extractor.BackendUnavailableError{Backend: filepath.Base(binary), Err: err}
	}
	var pathErr *exec.Error
	if errors.As(err, &pathErr) {
		return &extractor.BackendUnavailableError{Backend: filepath.Base(binary), Err: err}
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%s: %w: %s", filepath.Base(binary), err, msg)
	}
	return fmt.Errorf("%s: %w", filepath.Base(binary), err)
}
