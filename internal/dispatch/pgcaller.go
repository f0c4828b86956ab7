package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGCaller invokes Postgres functions through the connection pool. Argument
// maps become keyword arguments; map-valued arguments are passed as jsonb.
type PGCaller struct {
	pool *pgxpool.Pool
}

// NewPGCaller constructs a PGCaller.
func NewPGCaller(pool *pgxpool.Pool) *PGCaller {
	return &PGCaller{pool: pool}
}

// Call executes SELECT name(key => $n, ...) and returns the scalar result.
func (c *PGCaller) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("dispatch: invalid procedure name %q", name)
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		if !identPattern.MatchString(k) {
			return nil, fmt.Errorf("dispatch: invalid argument name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	values := make([]any, 0, len(keys))
	for i, k := range keys {
		parts = append(parts, fmt.Sprintf("%s => $%d", k, i+1))
		values = append(values, args[k])
	}

	query := fmt.Sprintf("SELECT %s(%s)", name, strings.Join(parts, ", "))
	var result any
	if err := c.pool.QueryRow(ctx, query, values...).Scan(&result); err != nil {
		return nil, err
	}
	return result, nil
}

var _ Caller = (*PGCaller)(nil)
