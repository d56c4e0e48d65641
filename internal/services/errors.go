package services

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrBadInput marks malformed user input (amount, address). Recovered
	// by re-prompting, never surfaced as a crash.
	ErrBadInput = errors.New("bad input")

	// ErrInsufficientBalance means the wallet cannot cover the requested
	// operation. No transaction is built when this is returned.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletBusy means another nonce-fetch-to-submit sequence is in
	// flight for the same wallet address. Retrying after the first one
	// settles is safe; proceeding concurrently is not.
	ErrWalletBusy = errors.New("another transaction for this wallet is in flight")
)

// AmbiguousTxError reports a transaction that was submitted but whose
// receipt wait failed. The transaction may still be mined; resubmitting
// would race a stale nonce, so the pipeline never retries and callers must
// report this outcome distinctly.
type AmbiguousTxError struct {
	Hash common.Hash
	Err  error
}

func (e *AmbiguousTxError) Error() string {
	return fmt.Sprintf("transaction %s submitted but confirmation is pending: %v", e.Hash.Hex(), e.Err)
}

func (e *AmbiguousTxError) Unwrap() error {
	return e.Err
}
