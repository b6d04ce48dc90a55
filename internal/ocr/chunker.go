package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultPageLimit is the conservative per-call page cap for online OCR
// processing. The service ceiling can be higher in some modes, but 15 is
// safe everywhere.
const DefaultPageLimit = 15

var chunkNameRE = regexp.MustCompile(`\.chunk_\d+_of_\d+\.pdf$`)

func pageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// chunkRanges returns the 1-based inclusive page ranges covering total
// pages in order, each at most limit pages wide.
func chunkRanges(total, limit int) [][2]int {
	if total <= 0 || limit <= 0 {
		return nil
	}
	count := (total + limit - 1) / limit
	out := make([][2]int, 0, count)
	for i := 0; i < count; i++ {
		start := i*limit + 1
		end := start + limit - 1
		if end > total {
			end = total
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// SplitPDF splits path into page-bounded chunk files next to the source.
// A document within the limit is returned as-is, as a single-element list,
// without writing anything. Chunk names embed index and total so cleanup
// can find them and logs can trace them.
func SplitPDF(path string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	total, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf page count for %s: %w", filepath.Base(path), err)
	}
	if total <= limit {
		return []string{path}, nil
	}

	ranges := chunkRanges(total, limit)
	chunks := make([]string, 0, len(ranges))
	for i, r := range ranges {
		out := chunkPath(path, i+1, len(ranges))
		sel := []string{fmt.Sprintf("%d-%d", r[0], r[1])}
		if err := api.TrimFile(path, out, sel, nil); err != nil {
			return nil, fmt.Errorf("pdf chunk %d/%d (%s pages %d-%d): %w",
				i+1, len(ranges), filepath.Base(path), r[0], r[1], err)
		}
		chunks = append(chunks, out)
	}
	return chunks, nil
}

func chunkPath(path string, index, total int) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s.chunk_%02d_of_%02d.pdf", base, index, total)
}

// CleanupChunks deletes every chunk file under dir, tolerating files that
// are already gone.
func CleanupChunks(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !chunkNameRE.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
