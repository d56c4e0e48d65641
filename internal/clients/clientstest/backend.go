// Package clientstest provides an in-memory chain fake for exercising the
// client facade, the transaction pipeline and the conversation layer
// without a node.
package clientstest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"lottery-bot/internal/clients"
)

// Backend implements clients.Backend against in-memory state. Zero value
// fields mean sane defaults: balance 0, nonce 0, gas price 1 gwei.
type Backend struct {
	mu sync.Mutex

	Balance  *big.Int
	Nonce    uint64
	GasPrice *big.Int
	Height   uint64

	// GasEstimate is returned by EstimateGas.
	GasEstimate uint64

	// MineOnSend confirms every sent transaction immediately with a
	// successful receipt carrying ReceiptLogs. When false, receipts stay
	// unavailable and WaitReceipt runs into its deadline.
	MineOnSend  bool
	ReceiptLogs []*types.Log

	// SendErr fails SendTransaction. SendErrAfter delays the failure
	// until that many sends have succeeded, for mid-run breakage.
	SendErr      error
	SendErrAfter int

	// FilterFn answers FilterLogs; nil means no logs.
	FilterFn func(q ethereum.FilterQuery) ([]types.Log, error)

	Sent        []*types.Transaction
	FilterCalls []ethereum.FilterQuery

	contractABI abi.ABI
	receipts    map[common.Hash]*types.Receipt
	views       map[string][]byte
}

// New creates a fake backend with one ether of balance.
func New() *Backend {
	return &Backend{
		Balance:     big.NewInt(1_000_000_000_000_000_000),
		GasPrice:    big.NewInt(1_000_000_000),
		Height:      1,
		GasEstimate: 50_000,
		contractABI: clients.ContractABI(),
		receipts:    make(map[common.Hash]*types.Receipt),
		views:       make(map[string][]byte),
	}
}

// SetView makes the contract answer a view method with the given outputs.
func (b *Backend) SetView(method string, outputs ...interface{}) error {
	m, ok := b.contractABI.Methods[method]
	if !ok {
		return fmt.Errorf("unknown method %s", method)
	}
	data, err := m.Outputs.Pack(outputs...)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.views[string(m.ID)] = data
	b.mu.Unlock()
	return nil
}

// EnteredMarketLog builds a log entry the way the contract emits it.
func (b *Backend) EnteredMarketLog(marketID *big.Int, user common.Address, amount *big.Int, block uint64) types.Log {
	event := b.contractABI.Events["EnteredMarket"]
	data, err := event.Inputs.NonIndexed().Pack(amount)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: common.Address{},
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(marketID),
			common.BytesToHash(user.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Height, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(b.Balance), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.GasEstimate, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil && len(b.Sent) >= b.SendErrAfter {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Nonce++
	if b.MineOnSend {
		b.Height++
		b.receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(b.Height),
			GasUsed:     21000,
			Logs:        b.ReceiptLogs,
		}
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	out, ok := b.views[string(msg.Data[:4])]
	if !ok {
		return nil, fmt.Errorf("no view configured for selector %x", msg.Data[:4])
	}
	return out, nil
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	fn := b.FilterFn
	b.FilterCalls = append(b.FilterCalls, q)
	b.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(q)
}
