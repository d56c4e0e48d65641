package clients

import (
	"fmt"

	"lottery-bot/internal/metrics"
)

// RPCError wraps any failure talking to the chain: network errors, node
// timeouts and contract reverts all surface through this type. The facade
// never retries; callers decide what a failure means for their flow.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

func rpcErr(op string, err error) error {
	metrics.RPCErrors.WithLabelValues(op).Inc()
	return &RPCError{Op: op, Err: err}
}
