package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/bot"
	"lottery-bot/internal/clients"
	"lottery-bot/internal/config"
	"lottery-bot/internal/services"
	"lottery-bot/internal/telegram"
	"lottery-bot/internal/wallet"
)

// ServiceContainer wires every component of the bot in dependency order.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Chain access
	LotteryClient *clients.LotteryClient

	// Core services
	WalletRegistry *wallet.Registry
	Pipeline       *services.Pipeline
	History        *services.HistoryService

	// Conversation layer
	Sessions *bot.SessionStore
	Machine  *bot.Machine
	Adapter  *telegram.Adapter
}

// InitializeContainer builds the full service graph. It fails fast: a bot
// that cannot reach the chain or Telegram has nothing useful to do.
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{
		Config: cfg,
		Logger: logger,
	}

	if err := c.initChainAccess(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize chain access: %w", err)
	}
	if err := c.initCoreServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize core services: %w", err)
	}
	if err := c.initConversation(); err != nil {
		return nil, fmt.Errorf("failed to initialize conversation layer: %w", err)
	}

	logger.Info("service container initialized")
	return c, nil
}

func (c *ServiceContainer) initChainAccess(ctx context.Context) error {
	backend, err := clients.Dial(ctx, &c.Config.Blockchain, c.Logger)
	if err != nil {
		return err
	}
	contract := common.HexToAddress(c.Config.Blockchain.LotteryContract)
	c.LotteryClient = clients.NewLotteryClient(backend, contract, c.Logger)
	return nil
}

func (c *ServiceContainer) initCoreServices() error {
	gasPrice, err := parseGasPrice(c.Config.Blockchain.GasPrice)
	if err != nil {
		return err
	}

	c.WalletRegistry = wallet.NewRegistry(c.Logger)
	c.Pipeline = services.NewPipeline(
		c.LotteryClient,
		c.Config.Blockchain.ChainID,
		c.Config.Blockchain.GasLimit,
		gasPrice,
		time.Duration(c.Config.Blockchain.ReceiptTimeout)*time.Second,
		c.Logger,
	)
	c.History = services.NewHistoryService(c.LotteryClient, c.Logger)
	return nil
}

// parseGasPrice interprets the configured gas price in wei. Empty or
// "auto" defers to the node's suggestion.
func parseGasPrice(raw string) (*big.Int, error) {
	if raw == "" || raw == "auto" {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid gas price %q", raw)
	}
	return price, nil
}

func (c *ServiceContainer) initConversation() error {
	c.Sessions = bot.NewSessionStore()

	handlers := bot.NewHandlers(
		c.WalletRegistry,
		c.LotteryClient,
		c.Pipeline,
		c.History,
		bot.ChainInfo{
			Network:         c.Config.Blockchain.Network,
			ChainID:         c.Config.Blockchain.ChainID,
			Contract:        c.Config.Blockchain.LotteryContract,
			ExplorerBaseURL: c.Config.Blockchain.ExplorerBaseURL,
		},
		c.Logger,
	)
	c.Machine = bot.NewMachine(handlers, c.Sessions, c.Logger)

	adapter, err := telegram.New(c.Config.Telegram.Token, c.Config.Telegram.PollTimeout, c.Machine, c.Logger)
	if err != nil {
		return err
	}
	c.Adapter = adapter
	return nil
}
