// Package models defines the data structures shared by the extraction,
// tagging and storage layers.
package models

// RunConfig holds per-invocation options for a processing run.
// All values come from CLI flags; file configuration lives in pkg/config.
type RunConfig struct {
	Workers      int // 0 = use the configured worker count
	ForceOCR     bool
	DocumentType DocumentType // "" = any
	Limit        int          // 0 = no limit
}
