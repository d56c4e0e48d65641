package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/config"
)

// Backend is the subset of ethclient.Client the facade needs. Tests swap in
// a fake chain; production always uses a dialed *ethclient.Client.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// LotteryClient is a typed wrapper over the Lottery contract and the plain
// chain reads the bot needs. It holds no mutable state, so one instance is
// shared by every concurrent user flow.
type LotteryClient struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
	logger   *logrus.Logger
}

// EnteredMarketEvent is one decoded EnteredMarket log entry.
type EnteredMarketEvent struct {
	MarketID    *big.Int
	User        common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// NewLotteryClient wraps an already-connected backend.
func NewLotteryClient(backend Backend, contract common.Address, logger *logrus.Logger) *LotteryClient {
	return &LotteryClient{
		backend:  backend,
		contract: contract,
		abi:      mustParseABI(lotteryABI),
		logger:   logger,
	}
}

// Dial tries each configured RPC endpoint in order and returns the first
// client whose connection verifies against the expected chain id.
func Dial(ctx context.Context, cfg *config.BlockchainConfig, logger *logrus.Logger) (*ethclient.Client, error) {
	var lastErr error
	for _, endpoint := range cfg.RPCEndpoints {
		client, err := ethclient.Dial(endpoint)
		if err != nil {
			logger.WithFields(logrus.Fields{"endpoint": endpoint, "error": err}).Warn("RPC dial failed")
			lastErr = err
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		networkID, err := client.NetworkID(checkCtx)
		cancel()
		if err != nil {
			logger.WithFields(logrus.Fields{"endpoint": endpoint, "error": err}).Warn("RPC connection check failed")
			client.Close()
			lastErr = err
			continue
		}
		if networkID.Int64() != cfg.ChainID {
			client.Close()
			lastErr = fmt.Errorf("endpoint %s serves chain %s, expected %d", endpoint, networkID, cfg.ChainID)
			logger.Warn(lastErr.Error())
			continue
		}

		logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"chain_id": networkID.String(),
		}).Info("connected to RPC endpoint")
		return client, nil
	}
	return nil, fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

// Contract returns the lottery contract address.
func (c *LotteryClient) Contract() common.Address {
	return c.contract
}

// ===== plain chain reads =====

// Balance returns the account's current balance in wei.
func (c *LotteryClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, rpcErr("balance", err)
	}
	return balance, nil
}

// Nonce returns the account's next nonce including pending transactions.
func (c *LotteryClient) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, rpcErr("nonce", err)
	}
	return nonce, nil
}

// GasPrice returns the node's suggested gas price.
func (c *LotteryClient) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, rpcErr("gas price", err)
	}
	return price, nil
}

// BlockNumber returns the latest block number.
func (c *LotteryClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, rpcErr("block number", err)
	}
	return n, nil
}

// Submit sends a signed transaction to the chain.
func (c *LotteryClient) Submit(ctx context.Context, tx *types.Transaction) error {
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return rpcErr("send transaction", err)
	}
	return nil
}

// WaitReceipt polls for the transaction's receipt until the context is
// done. Callers bound the wait with a deadline; a transaction can still be
// mined after the deadline expires, which is why the pipeline treats a wait
// failure as ambiguous rather than as a clean failure.
func (c *LotteryClient) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, rpcErr("receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, rpcErr("receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

// ===== contract view calls =====

// CurrentRoundID returns the id of the round currently open for entries.
func (c *LotteryClient) CurrentRoundID(ctx context.Context, from common.Address) (*big.Int, error) {
	var id *big.Int
	if err := c.view(ctx, from, "marketId", &id); err != nil {
		return nil, err
	}
	return id, nil
}

// RoundPool returns the prize pool of a round in wei.
func (c *LotteryClient) RoundPool(ctx context.Context, from common.Address, roundID *big.Int) (*big.Int, error) {
	var pool *big.Int
	if err := c.view(ctx, from, "getRoundAmount", &pool, roundID); err != nil {
		return nil, err
	}
	return pool, nil
}

// RoundParticipants returns the addresses entered into a round.
func (c *LotteryClient) RoundParticipants(ctx context.Context, from common.Address, roundID *big.Int) ([]common.Address, error) {
	var participants []common.Address
	if err := c.view(ctx, from, "getRoundParticipants", &participants, roundID); err != nil {
		return nil, err
	}
	return participants, nil
}

// RoundExpiry returns the round's expiration as a unix timestamp.
func (c *LotteryClient) RoundExpiry(ctx context.Context, from common.Address, roundID *big.Int) (*big.Int, error) {
	var expiry *big.Int
	if err := c.view(ctx, from, "marketIdToExpiration", &expiry, roundID); err != nil {
		return nil, err
	}
	return expiry, nil
}

// RoundWinner returns the winning address of a settled round, or the zero
// address while the round is still open.
func (c *LotteryClient) RoundWinner(ctx context.Context, from common.Address, roundID *big.Int) (common.Address, error) {
	var winner common.Address
	if err := c.view(ctx, from, "getRoundWinner", &winner, roundID); err != nil {
		return common.Address{}, err
	}
	return winner, nil
}

// PendingWinnings returns the round ids the calling address has unclaimed
// winnings in. The contract filters by msg.sender, so the from address is
// the user's wallet.
func (c *LotteryClient) PendingWinnings(ctx context.Context, from common.Address) ([]*big.Int, error) {
	var ids []*big.Int
	if err := c.view(ctx, from, "filterPendingWinningEntriesForUser", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PackEnterMarket returns call data for the payable enterMarket function.
func (c *LotteryClient) PackEnterMarket() ([]byte, error) {
	data, err := c.abi.Pack("enterMarket")
	if err != nil {
		return nil, fmt.Errorf("failed to pack enterMarket: %w", err)
	}
	return data, nil
}

// PackClaimWinnings returns call data for claimWinnings(marketId).
func (c *LotteryClient) PackClaimWinnings(roundID *big.Int) ([]byte, error) {
	data, err := c.abi.Pack("claimWinnings", roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack claimWinnings: %w", err)
	}
	return data, nil
}

// EstimateGas estimates gas for a call against the lottery contract.
func (c *LotteryClient) EstimateGas(ctx context.Context, from common.Address, value *big.Int, data []byte) (uint64, error) {
	to := c.contract
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, rpcErr("estimate gas", err)
	}
	return gas, nil
}

// view performs an eth_call against the contract and unpacks a single
// return value into out.
func (c *LotteryClient) view(ctx context.Context, from common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	to := c.contract
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return rpcErr(method, err)
	}
	if err := c.abi.UnpackIntoInterface(out, method, raw); err != nil {
		return rpcErr(method, fmt.Errorf("failed to unpack result: %w", err))
	}
	return nil
}

// ===== event queries =====

// EnteredMarketLogs scans [fromBlock, toBlock] for EnteredMarket events
// emitted for the given user. The range is bounded by the caller; this is
// one history scan window.
func (c *LotteryClient) EnteredMarketLogs(ctx context.Context, user common.Address, fromBlock, toBlock uint64) ([]EnteredMarketEvent, error) {
	event := c.abi.Events["EnteredMarket"]
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics: [][]common.Hash{
			{event.ID},
			nil, // any MarketId
			{common.BytesToHash(user.Bytes())},
		},
	}

	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, rpcErr("filter EnteredMarket", err)
	}

	events := make([]EnteredMarketEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			c.logger.WithField("tx", lg.TxHash.Hex()).Warn("skipping malformed EnteredMarket log")
			continue
		}
		unpacked, err := c.abi.Unpack("EnteredMarket", lg.Data)
		if err != nil || len(unpacked) != 1 {
			c.logger.WithFields(logrus.Fields{"tx": lg.TxHash.Hex(), "error": err}).Warn("failed to decode EnteredMarket amount")
			continue
		}
		amount, ok := unpacked[0].(*big.Int)
		if !ok {
			continue
		}
		events = append(events, EnteredMarketEvent{
			MarketID:    new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			User:        common.BytesToAddress(lg.Topics[2].Bytes()),
			Amount:      amount,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
		})
	}
	return events, nil
}
