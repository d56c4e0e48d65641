package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RoundRecord is one round a user participated in, reconstructed on demand
// from entry-event logs and view calls. Never stored; recomputed per
// history request.
type RoundRecord struct {
	MarketID   *big.Int
	PoolAmount *big.Int
	Winner     common.Address
	UserStake  *big.Int
}

// Settled reports whether the round has a winner yet.
func (r *RoundRecord) Settled() bool {
	return r.Winner != (common.Address{})
}
