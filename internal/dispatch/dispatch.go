// Package dispatch invokes backend procedures whose exact names and argument
// shapes vary across deployments. Candidate names and shapes are
// configuration data; every other component is isolated from that
// instability through this package.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrExhausted indicates every candidate procedure reported "not available".
// It signals a deployment or configuration defect, not a business rejection.
var ErrExhausted = errors.New("dispatch: no candidate procedure available")

// ExhaustedError carries the last error observed while probing candidates.
type ExhaustedError struct {
	Last error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return ErrExhausted.Error()
	}
	return fmt.Sprintf("%s (last: %v)", ErrExhausted.Error(), e.Last)
}

// Is reports true for ErrExhausted so callers can match with errors.Is.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// RejectionError wraps an error from a procedure that exists but refused the
// call. It stops candidate probing and is surfaced verbatim.
type RejectionError struct {
	Procedure string
	Err       error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("dispatch: %s rejected: %v", e.Procedure, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Caller executes one named backend procedure with a keyword argument map.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// Result pairs the procedure that answered with its raw return value.
type Result struct {
	ResolvedName string
	Raw          any
}

var missingFnPattern = regexp.MustCompile(`(?i)function .* does not exist`)

// NotAvailable reports whether err means the named procedure is absent on
// the backend, as opposed to present-but-rejecting. Postgres reports
// undefined functions as SQLSTATE 42883 (and missing relations as 42P01);
// other callers are matched on the message.
func NotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42883" || pgErr.Code == "42P01"
	}
	return err != nil && missingFnPattern.MatchString(err.Error())
}

// Dispatcher probes candidate procedures in a fixed order.
type Dispatcher struct {
	caller Caller
	logger *slog.Logger
}

// New constructs a Dispatcher.
func New(caller Caller, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{caller: caller, logger: logger}
}

// Invoke tries each argument shape against each candidate name (shapes
// outer, names inner) and returns the first success. A "not available"
// failure moves to the next candidate; any other failure stops probing
// immediately so a real rejection is never masked. After all candidates are
// exhausted the last observed error is reported under ErrExhausted.
func (d *Dispatcher) Invoke(ctx context.Context, names []string, shapes []map[string]any) (Result, error) {
	if len(names) == 0 {
		return Result{}, &ExhaustedError{}
	}
	if len(shapes) == 0 {
		shapes = []map[string]any{nil}
	}
	var last error
	for _, args := range shapes {
		for _, name := range names {
			raw, err := d.caller.Call(ctx, name, args)
			if err == nil {
				return Result{ResolvedName: name, Raw: raw}, nil
			}
			if !NotAvailable(err) {
				return Result{}, &RejectionError{Procedure: name, Err: err}
			}
			d.logger.Debug("procedure not available",
				slog.String("procedure", name))
			last = err
		}
	}
	return Result{}, &ExhaustedError{Last: last}
}
