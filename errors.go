package evmsqlindex

import "errors"

// Error kinds returned by this package. Writers wrap the underlying
// driver/engine error with one of these via fmt.Errorf("...: %w", ...);
// callers should use errors.Is/errors.As rather than string matching.
var (
	// ErrConfig marks a malformed connection configuration or an
	// unsupported backend.
	ErrConfig = errors.New("evmsqlindex: config error")

	// ErrSchema marks a failed migration script.
	ErrSchema = errors.New("evmsqlindex: schema error")

	// ErrProtocol marks a logical inconsistency surfaced by the chain
	// reader or the blocking-worker facility (MultipleLogs, missing
	// genesis hash, worker dispatch failure).
	ErrProtocol = errors.New("evmsqlindex: protocol error")

	// ErrInvalidRequest marks a malformed filter_logs request, e.g. a
	// topic row with more than four positions.
	ErrInvalidRequest = errors.New("evmsqlindex: invalid request")

	// ErrQueryBudgetExceeded marks a query aborted by the progress
	// handler after exceeding its virtual-machine step budget.
	ErrQueryBudgetExceeded = errors.New("evmsqlindex: query budget exceeded")

	// ErrBackendIO marks a raw engine failure: lost connection, disk,
	// locking. Writers should retry on this.
	ErrBackendIO = errors.New("evmsqlindex: backend io error")
)
