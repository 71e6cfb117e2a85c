// Package helpers holds small formatting utilities shared across the
// CLI and cache admin commands. It is the trimmed survivor of the
// teacher's internal/helpers: the hash-comparison and slug-generation
// helpers were tied to the Civitai model-file domain and have no
// equivalent here (see DESIGN.md), but BytesToSize is generic enough to
// keep for cache stats output.
package helpers

import (
	"fmt"
	"math"
)

// BytesToSize converts a byte count into a human-readable string (KB,
// MB, GB, etc.), used by the cache stats CLI command.
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}
