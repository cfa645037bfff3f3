package analysis

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// EvidenceAnalyzer is the default ImageAnalyzer. It sniffs the file content
// for its media type and, for still images, decodes the header to report the
// pixel dimensions. Video evidence is identified but not decoded.
type EvidenceAnalyzer struct{}

// NewEvidenceAnalyzer returns an EvidenceAnalyzer.
func NewEvidenceAnalyzer() *EvidenceAnalyzer { return &EvidenceAnalyzer{} }

// AnalyzeImage implements ImageAnalyzer. An empty path yields the fixed
// "no image" summary; every failure is folded into the returned text.
func (EvidenceAnalyzer) AnalyzeImage(ctx context.Context, path string) string {
	if path == "" {
		return "No image provided for analysis."
	}
	if err := ctx.Err(); err != nil {
		return "Error during image analysis: " + err.Error()
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "Error during image analysis: " + err.Error()
	}
	kind := mt.String()
	if i := strings.IndexByte(kind, ';'); i >= 0 {
		kind = kind[:i]
	}

	switch {
	case strings.HasPrefix(kind, "video/"):
		return fmt.Sprintf("Image Analysis: %s (video evidence, frames not analysed)", kind)
	case !strings.HasPrefix(kind, "image/"):
		return fmt.Sprintf("Error during image analysis: unsupported media type %s", kind)
	}

	f, err := os.Open(path)
	if err != nil {
		return "Error during image analysis: " + err.Error()
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Sprintf("Image Analysis: %s (dimensions unavailable)", kind)
	}
	return fmt.Sprintf("Image Analysis: %s, %dx%d", kind, cfg.Width, cfg.Height)
}
