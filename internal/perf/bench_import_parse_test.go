package perf

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/milltrack-erp/milltrack/internal/importer"
	_ "github.com/milltrack-erp/milltrack/internal/testing/guard"
)

// A customer paste rarely exceeds a few hundred lines; parsing a couple of
// thousand must stay well inside one request timeout.
func TestImportParseLatencyBudget(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("supplier\tfactory\tnote no\tnote date\tyarn type\tbrand\tlot\tqty\tprice\n")
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "Supplier %d\tFactory %d\tN-%d\t2025-06-%02d\tCotton 30/1\tBrand %d\tL%d\t%d.5\t41.25\n",
			i%40, i%7, i%150, i%28+1, i%5, i, i%900+100)
	}
	raw := sb.String()

	start := time.Now()
	rows, err := importer.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	groups := importer.Group(rows)
	elapsed := time.Since(start)

	if len(rows) != 2000 {
		t.Fatalf("expected 2000 rows, got %d", len(rows))
	}
	if len(groups) == 0 {
		t.Fatal("expected at least one group")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("parse+group too slow: %s", elapsed)
	}
}
