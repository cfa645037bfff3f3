// Package analysis produces the plain-text summaries attached to every new
// report: one for the written description and one for the evidence file.
// Summaries are stored verbatim on the ledger and never parsed again.
package analysis

import "context"

// TextAnalyzer summarises a report description.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text string) string
}

// ImageAnalyzer summarises an evidence file on disk.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, path string) string
}

// Finding is a single rule match.
type Finding struct {
	Label      string  `json:"label"`
	Term       string  `json:"term"`
	Confidence float64 `json:"confidence"`
}
