package ocr

import (
	"strings"
	"testing"

	"github.com/notesnap/notesnap-backend/internal/types"
)

func TestNeedsDiagramUnderstanding(t *testing.T) {
	dense := strings.Repeat("word ", 80)
	sparse := "cell nucleus membrane"

	cases := []struct {
		name     string
		fileType types.FileType
		text     string
		want     bool
	}{
		{"sparse image", types.FileTypeImage, sparse, true},
		{"empty image", types.FileTypeImage, "", true},
		{"dense image", types.FileTypeImage, dense, false},
		{"exactly at threshold", types.FileTypeImage, strings.Repeat("w ", diagramWordThreshold), false},
		{"one below threshold", types.FileTypeImage, strings.Repeat("w ", diagramWordThreshold-1), true},
		{"sparse pdf never qualifies", types.FileTypePDF, sparse, false},
	}
	for _, tc := range cases {
		if got := NeedsDiagramUnderstanding(tc.fileType, tc.text); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}
