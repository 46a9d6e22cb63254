//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func f64(x float64) string {
	// full precision so returns read back exactly
	return fmt.Sprintf("%.10f", x)
}

// writeReturnsCSV writes a single-column return file named for key.
func writeReturnsCSV(t *testing.T, dir, key string, n int, fn func(i int) float64) {
	t.Helper()

	var b strings.Builder
	b.WriteString("date,return\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,%s\n", i%28+1, f64(fn(i)))
	}
	path := filepath.Join(dir, strings.ReplaceAll(key, "/", "_")+".csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}
