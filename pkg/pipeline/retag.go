package pipeline

import (
	"context"
	"fmt"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/metrics"
)

// RetagResult is the tag change for one document.
type RetagResult struct {
	DocumentID int64
	URL        string
	Before     []string
	After      []string
}

// Changed reports whether the set of topics differs.
func (r RetagResult) Changed() bool {
	if len(r.Before) != len(r.After) {
		return true
	}
	for i := range r.Before {
		if r.Before[i] != r.After[i] {
			return true
		}
	}
	return false
}

// Retag recomputes tag assignments from stored pages. Only documents tagged
// with a different taxonomy are touched unless all is set. Extraction is
// never repeated.
func (p *Processor) Retag(ctx context.Context, all bool) ([]RetagResult, error) {
	docs, err := p.db.ListStaleTagged(ctx, p.taxonomy.Fingerprint(), all)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Retagging documents", "documents", len(docs), "fingerprint", p.taxonomy.Fingerprint()[:12], "all", all)

	results := make([]RetagResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		before, err := p.db.GetTags(ctx, doc.ID)
		if err != nil {
			return results, err
		}
		pages, err := p.db.GetPages(ctx, doc.ID)
		if err != nil {
			return results, err
		}
		tags := p.taxonomy.TagPages(pages)
		if err := p.db.ReplaceTags(ctx, doc.ID, tags, p.taxonomy.Fingerprint()); err != nil {
			return results, fmt.Errorf("failed to retag document %d: %w", doc.ID, err)
		}
		for _, tag := range tags {
			metrics.TagAssignments.WithLabelValues(tag.Topic).Inc()
		}
		results = append(results, RetagResult{
			DocumentID: doc.ID,
			URL:        doc.URL,
			Before:     topicNames(before),
			After:      topicNames(tags),
		})
	}
	return results, nil
}

func topicNames(tags []models.TagAssignment) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Topic
	}
	return names
}
