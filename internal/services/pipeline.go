package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/clients"
	"lottery-bot/internal/metrics"
	"lottery-bot/internal/wallet"
)

// TxResult reports a confirmed submission.
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// ClaimedRound is one successfully claimed round.
type ClaimedRound struct {
	RoundID *big.Int
	Amount  *big.Int
	Hash    common.Hash
}

// ClaimResult aggregates a claim-all run.
type ClaimResult struct {
	Total   *big.Int
	Claimed []ClaimedRound
}

// Pipeline drives the build->sign->submit->confirm sequence for every
// wallet-mutating operation. At most one such sequence runs per wallet
// address at a time: a concurrent attempt is rejected with ErrWalletBusy
// instead of racing the first one's nonce.
type Pipeline struct {
	client           *clients.LotteryClient
	chainID          *big.Int
	gasLimit         uint64 // 0 = estimate per call
	gasPriceOverride *big.Int
	receiptTimeout   time.Duration
	logger           *logrus.Logger

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

// NewPipeline creates a transaction pipeline. gasLimit 0 means estimate per
// call with a safety margin; gasPriceOverride nil means ask the node.
func NewPipeline(client *clients.LotteryClient, chainID int64, gasLimit uint64, gasPriceOverride *big.Int, receiptTimeout time.Duration, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		client:           client,
		chainID:          big.NewInt(chainID),
		gasLimit:         gasLimit,
		gasPriceOverride: gasPriceOverride,
		receiptTimeout:   receiptTimeout,
		logger:           logger,
		locks:            make(map[common.Address]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one wallet address.
func (p *Pipeline) lockFor(addr common.Address) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		p.locks[addr] = l
	}
	return l
}

// acquire takes the wallet's pipeline lock or reports ErrWalletBusy. The
// double-tap case: the second attempt must not proceed to a nonce fetch
// while the first submission is unconfirmed.
func (p *Pipeline) acquire(addr common.Address) (*sync.Mutex, error) {
	l := p.lockFor(addr)
	if !l.TryLock() {
		return nil, ErrWalletBusy
	}
	return l, nil
}

// EnterRound stakes a user-chosen amount into the current round. The stake
// must not exceed the wallet's balance; the caller re-prompts on
// ErrInsufficientBalance.
func (p *Pipeline) EnterRound(ctx context.Context, w *wallet.Wallet, stake *big.Int) (*TxResult, error) {
	lock, err := p.acquire(w.Address)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	balance, err := p.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(stake) < 0 {
		return nil, ErrInsufficientBalance
	}

	data, err := p.client.PackEnterMarket()
	if err != nil {
		return nil, err
	}
	receipt, hash, err := p.execute(ctx, "enter", w, p.client.Contract(), stake, data, p.gasLimit)
	if err != nil {
		return nil, err
	}
	return resultFrom(receipt, hash), nil
}

// QuickEnter stakes floor(balance/EntryUnit)-1 units into the current
// round. Aborts with ErrInsufficientBalance before building anything when
// the balance does not cover a single unit plus headroom.
func (p *Pipeline) QuickEnter(ctx context.Context, w *wallet.Wallet) (*TxResult, *big.Int, error) {
	lock, err := p.acquire(w.Address)
	if err != nil {
		return nil, nil, err
	}
	defer lock.Unlock()

	balance, err := p.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, nil, err
	}
	stake, err := QuickEnterStake(balance)
	if err != nil {
		return nil, nil, err
	}

	data, err := p.client.PackEnterMarket()
	if err != nil {
		return nil, nil, err
	}
	receipt, hash, err := p.execute(ctx, "quick_enter", w, p.client.Contract(), stake, data, p.gasLimit)
	if err != nil {
		return nil, nil, err
	}
	return resultFrom(receipt, hash), stake, nil
}

// ClaimAll submits one claimWinnings transaction per pending round id,
// sequentially under a single wallet lock so consecutive nonces never
// collide. The claimed amount per round is decoded from the first log of
// the claim receipt. Stops at the first failure and reports what was
// claimed so far inside the error-free prefix.
func (p *Pipeline) ClaimAll(ctx context.Context, w *wallet.Wallet) (*ClaimResult, error) {
	lock, err := p.acquire(w.Address)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	pending, err := p.client.PendingWinnings(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{Total: new(big.Int)}
	for _, roundID := range pending {
		data, err := p.client.PackClaimWinnings(roundID)
		if err != nil {
			return result, err
		}
		receipt, hash, err := p.execute(ctx, "claim", w, p.client.Contract(), nil, data, p.gasLimit)
		if err != nil {
			return result, err
		}

		amount := new(big.Int)
		if len(receipt.Logs) > 0 {
			amount.SetBytes(receipt.Logs[0].Data)
		} else {
			p.logger.WithFields(logrus.Fields{
				"round": roundID.String(),
				"tx":    hash.Hex(),
			}).Warn("claim receipt carried no logs, amount unknown")
		}
		result.Claimed = append(result.Claimed, ClaimedRound{RoundID: roundID, Amount: amount, Hash: hash})
		result.Total.Add(result.Total, amount)
	}
	return result, nil
}

// Withdraw sends funds to an external address, reserving TransferGas *
// gasPrice so the transfer can never fail on gas. The requested amount is
// clamped per WithdrawAmount.
func (p *Pipeline) Withdraw(ctx context.Context, w *wallet.Wallet, to common.Address, requested *big.Int) (*TxResult, *big.Int, error) {
	lock, err := p.acquire(w.Address)
	if err != nil {
		return nil, nil, err
	}
	defer lock.Unlock()

	balance, err := p.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, nil, err
	}
	gasPrice, err := p.gasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}

	reserve := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(TransferGas))
	amount := WithdrawAmount(requested, balance, reserve)
	if amount.Sign() <= 0 {
		return nil, nil, ErrInsufficientBalance
	}

	receipt, hash, err := p.executeWithGasPrice(ctx, "withdraw", w, to, amount, nil, TransferGas, gasPrice)
	if err != nil {
		return nil, nil, err
	}
	return resultFrom(receipt, hash), amount, nil
}

// execute runs one nonce-fetch-to-confirm sequence. Each step stops the
// pipeline on failure; only a receipt-wait failure after submission is
// reported as ambiguous.
func (p *Pipeline) execute(ctx context.Context, op string, w *wallet.Wallet, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, common.Hash, error) {
	gasPrice, err := p.gasPrice(ctx)
	if err != nil {
		metrics.TransactionsFailed.WithLabelValues(op, "gas_price").Inc()
		return nil, common.Hash{}, err
	}
	return p.executeWithGasPrice(ctx, op, w, to, value, data, gasLimit, gasPrice)
}

func (p *Pipeline) executeWithGasPrice(ctx context.Context, op string, w *wallet.Wallet, to common.Address, value *big.Int, data []byte, gasLimit uint64, gasPrice *big.Int) (*types.Receipt, common.Hash, error) {
	traceID := uuid.New().String()
	log := p.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"op":       op,
		"from":     w.Address.Hex(),
	})

	nonce, err := p.client.Nonce(ctx, w.Address)
	if err != nil {
		metrics.TransactionsFailed.WithLabelValues(op, "nonce").Inc()
		return nil, common.Hash{}, err
	}

	if gasLimit == 0 {
		estimated, err := p.client.EstimateGas(ctx, w.Address, value, data)
		if err != nil {
			metrics.TransactionsFailed.WithLabelValues(op, "estimate").Inc()
			return nil, common.Hash{}, err
		}
		gasLimit = estimated * 2
	}

	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signer := types.NewEIP155Signer(p.chainID)
	signedTx, err := types.SignTx(tx, signer, w.PrivateKey)
	if err != nil {
		metrics.TransactionsFailed.WithLabelValues(op, "sign").Inc()
		return nil, common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.Submit(ctx, signedTx); err != nil {
		metrics.TransactionsFailed.WithLabelValues(op, "submit").Inc()
		return nil, common.Hash{}, err
	}
	hash := signedTx.Hash()
	metrics.TransactionsSubmitted.WithLabelValues(op).Inc()
	log.WithFields(logrus.Fields{
		"tx":    hash.Hex(),
		"nonce": nonce,
		"value": value.String(),
	}).Info("transaction submitted")

	// Past this point the transaction is on the wire. A failed wait does
	// not mean a failed transaction, so no retry is allowed.
	waitCtx, cancel := context.WithTimeout(ctx, p.receiptTimeout)
	defer cancel()
	receipt, err := p.client.WaitReceipt(waitCtx, hash)
	if err != nil {
		metrics.TransactionsAmbiguous.WithLabelValues(op).Inc()
		log.WithField("error", err).Warn("receipt wait failed after submission")
		return nil, hash, &AmbiguousTxError{Hash: hash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.TransactionsFailed.WithLabelValues(op, "reverted").Inc()
		return nil, hash, fmt.Errorf("transaction %s reverted on chain", hash.Hex())
	}

	log.WithFields(logrus.Fields{
		"tx":    hash.Hex(),
		"block": receipt.BlockNumber.Uint64(),
		"gas":   receipt.GasUsed,
	}).Info("transaction confirmed")
	return receipt, hash, nil
}

func (p *Pipeline) gasPrice(ctx context.Context) (*big.Int, error) {
	if p.gasPriceOverride != nil {
		return p.gasPriceOverride, nil
	}
	return p.client.GasPrice(ctx)
}

func resultFrom(receipt *types.Receipt, hash common.Hash) *TxResult {
	return &TxResult{
		Hash:        hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
}
