package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/dtnitsch/lda-transparency/pkg/extractor"
)

// Tesseract recognizes page images with the tesseract CLI, asking for TSV
// output so that word confidences are available.
type Tesseract struct {
	Binary string // defaults to "tesseract"
}

func (t Tesseract) binary() string {
	if t.Binary == "" {
		return "tesseract"
	}
	return t.Binary
}

// Available reports whether the binary can be found.
func (t Tesseract) Available() error {
	return lookPath(t.binary())
}

// Recognize runs tesseract over one image.
func (t Tesseract) Recognize(ctx context.Context, imagePath string, opts extractor.RecognitionOptions) (extractor.Recognition, error) {
	args := []string{imagePath, "stdout"}
	if len(opts.Languages) > 0 {
		args = append(args, "-l", strings.Join(opts.Languages, "+"))
	}
	args = append(args,
		"--psm", strconv.Itoa(opts.SegmentationMode),
		"--oem", strconv.Itoa(opts.EngineMode),
		"tsv",
	)
	cmd := exec.CommandContext(ctx, t.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return extractor.Recognition{}, runError(ctx, t.binary(), err, stderr.String())
	}
	return ParseTSV(&stdout)
}

// Languages lists the trained languages tesseract has installed.
func (t Tesseract) Languages(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, t.binary(), "--list-langs")
	// Older releases print the list on stderr.
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, runError(ctx, t.binary(), err, out.String())
	}
	var langs []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs, nil
}

// MissingLanguages returns the entries of want that are not installed.
func (t Tesseract) MissingLanguages(ctx context.Context, want []string) ([]string, error) {
	have, err := t.Languages(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, lang := range want {
		if !slices.Contains(have, lang) {
			missing = append(missing, lang)
		}
	}
	return missing, nil
}

// tsv columns
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const wordLevel = 5

// ParseTSV rebuilds page text from tesseract TSV output. Words on the same
// line are joined by a space, lines by a newline and paragraphs by a blank
// line. Confidence is the mean over recognized words.
func ParseTSV(r io.Reader) (extractor.Recognition, error) {
	var (
		sb       strings.Builder
		rec      extractor.Recognition
		confSum  float64
		confN    int
		lastPara = ""
		lastLine = ""
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		fields := strings.SplitN(line, "\t", numCols)
		if len(fields) < numCols {
			continue
		}
		level, err := strconv.Atoi(fields[colLevel])
		if err != nil {
			return extractor.Recognition{}, fmt.Errorf("malformed tsv row %q: %w", line, err)
		}
		if level != wordLevel {
			continue
		}
		word := strings.TrimSpace(fields[colText])
		if word == "" {
			continue
		}

		para := fields[colPage] + "." + fields[colBlock] + "." + fields[colPar]
		lineKey := para + "." + fields[colLine]
		switch {
		case sb.Len() == 0:
		case para != lastPara:
			sb.WriteString("\n\n")
		case lineKey != lastLine:
			sb.WriteString("\n")
		default:
			sb.WriteString(" ")
		}
		sb.WriteString(word)
		lastPara, lastLine = para, lineKey
		rec.Words++

		conf, err := strconv.ParseFloat(strings.TrimSpace(fields[colConf]), 64)
		if err == nil && conf >= 0 {
			confSum += conf
			confN++
		}
	}
	if err := scanner.Err(); err != nil {
		return extractor.Recognition{}, fmt.Errorf("failed to read tsv: %w", err)
	}

	rec.Text = sb.String()
	if confN > 0 {
		rec.Confidence = confSum / float64(confN)
	}
	return rec, nil
}
