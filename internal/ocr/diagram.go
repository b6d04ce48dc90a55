package ocr

import (
	"strings"

	"github.com/notesnap/notesnap-backend/internal/types"
)

// diagramWordThreshold is the OCR word count below which an image is
// assumed to be a diagram rather than a photograph of text.
const diagramWordThreshold = 50

// NeedsDiagramUnderstanding decides whether an image should go through a
// multimodal description pass instead of relying on OCR alone. PDFs never
// qualify. This is a heuristic: a sparse caption can trigger it, a dense
// labeled diagram can evade it.
func NeedsDiagramUnderstanding(fileType types.FileType, extractedText string) bool {
	if fileType != types.FileTypeImage {
		return false
	}
	return len(strings.Fields(extractedText)) < diagramWordThreshold
}
