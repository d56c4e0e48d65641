package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/clients"
	"lottery-bot/internal/metrics"
	"lottery-bot/internal/services"
	"lottery-bot/internal/wallet"
)

// Outcome is what a handler produces: everything to say, and the state the
// session moves to. StateEndLevel asks the machine to resolve the parent
// mapping instead of storing a state.
type Outcome struct {
	Reply *Reply
	Next  State
}

// Handler processes one event for one session. A handler performs at most
// one externally visible side effect set and never mutates Session.State
// directly; the machine applies the transition.
type Handler func(ctx context.Context, s *Session, ev Event) (*Outcome, error)

// ChainInfo is the static network description shown in settings.
type ChainInfo struct {
	Network         string
	ChainID         int64
	Contract        string
	ExplorerBaseURL string
}

// Handlers implements every conversation state. It is the only layer that
// turns component errors into user-visible text.
type Handlers struct {
	wallets  *wallet.Registry
	client   *clients.LotteryClient
	pipeline *services.Pipeline
	history  *services.HistoryService
	chain    ChainInfo
	logger   *logrus.Logger
}

// NewHandlers wires the conversation handlers.
func NewHandlers(wallets *wallet.Registry, client *clients.LotteryClient, pipeline *services.Pipeline, history *services.HistoryService, chain ChainInfo, logger *logrus.Logger) *Handlers {
	return &Handlers{
		wallets:  wallets,
		client:   client,
		pipeline: pipeline,
		history:  history,
		chain:    chain,
		logger:   logger,
	}
}

func (h *Handlers) txURL(hash common.Hash) string {
	return h.chain.ExplorerBaseURL + hash.Hex()
}

func mainMenuButtons() [][]Button {
	return [][]Button{
		row(Button{"Current Round", CodeCurrentRound}, Button{"Claim Winnings", CodeClaimWinnings}),
		row(Button{"Deposit", CodeDeposit}, Button{"Withdraw", CodeWithdraw}),
		row(Button{"History", CodeHistory}, Button{"Settings", CodeSettings}),
	}
}

// ===== top level =====

// Start renders the main menu. On a user's very first contact it also
// greets and creates the custodial wallet. When the session's startOver
// flag is set and the trigger was a button press, the menu edits the
// current message in place so only one menu message ever exists.
func (h *Handlers) Start(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	editInPlace := s.StartOver && ev.Kind == EventCallback
	s.StartOver = false

	var msgs []Message
	if ev.Kind == EventCommand {
		msgs = append(msgs, text("Hello this is PredictionBot by VenueOne."))
	}

	w, created, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.WalletsCreated.Inc()
		msgs = append(msgs, text("This is your first login. Creating a wallet for you"))
	}

	balance, err := h.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	menu := Message{
		Text:    fmt.Sprintf("Wallet address: %s\nBalance: %s", w.Address.Hex(), services.FormatEther(balance)),
		Buttons: mainMenuButtons(),
		Edit:    editInPlace,
	}
	return &Outcome{Reply: reply(append(msgs, menu)...), Next: StateSelectingAction}, nil
}

// End terminates the session from the main menu's Back button.
func (h *Handlers) End(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	s.reset()
	return &Outcome{Reply: reply(edited("See you around!", nil)), Next: StateStopped}, nil
}

// Stop terminates the whole machine from any state, bypassing every
// parent mapping.
func (h *Handlers) Stop(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	s.reset()
	return &Outcome{Reply: reply(text("Okay, bye.")), Next: StateStopped}, nil
}

// Deposit shows the custodial address funds should be sent to.
func (h *Handlers) Deposit(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}
	msg := edited(w.Address.Hex(), backRow())
	msg.Monospace = true
	s.StartOver = true
	return &Outcome{Reply: reply(msg), Next: StateShowing}, nil
}

// Settings shows the static network configuration.
func (h *Handlers) Settings(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	body := fmt.Sprintf("Network: %s\nChain id: %d\nLottery contract: %s\nExplorer: %s",
		h.chain.Network, h.chain.ChainID, h.chain.Contract, h.chain.ExplorerBaseURL)
	s.StartOver = true
	return &Outcome{Reply: reply(edited(body, backRow())), Next: StateShowing}, nil
}

// History reconstructs and reports the user's recent rounds.
func (h *Handlers) History(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	records, err := h.history.Reconstruct(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if len(records) == 0 {
		b.WriteString("No round entries found in the scanned range.")
	} else {
		for _, rec := range records {
			winner := "pending"
			if rec.Settled() {
				winner = rec.Winner.Hex()
				if rec.Winner == w.Address {
					winner += " (you!)"
				}
			}
			fmt.Fprintf(&b, "Round %s: pool %s, your entries %s, winner %s\n",
				rec.MarketID, services.FormatEther(rec.PoolAmount), services.FormatEther(rec.UserStake), winner)
		}
	}

	s.StartOver = true
	return &Outcome{
		Reply: reply(
			text("Fetching history for the past 24 hours"),
			withButtons(strings.TrimRight(b.String(), "\n"), backRow()),
		),
		Next: StateShowing,
	}, nil
}

// ===== second level: current round =====

// RoundMenu shows the open round and its entry actions. Also serves as the
// Refresh target.
func (h *Handlers) RoundMenu(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	roundID, err := h.client.CurrentRoundID(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	pool, err := h.client.RoundPool(ctx, w.Address, roundID)
	if err != nil {
		return nil, err
	}
	participants, err := h.client.RoundParticipants(ctx, w.Address, roundID)
	if err != nil {
		return nil, err
	}
	expiry, err := h.client.RoundExpiry(ctx, w.Address, roundID)
	if err != nil {
		return nil, err
	}

	remaining := expiry.Int64() - time.Now().Unix()
	if remaining < 0 {
		remaining = 0
	}

	body := fmt.Sprintf("Current round: %s\nCurrent prize pool: %s\nTotal players entered: %d\nExpires in: %ds",
		roundID, services.FormatEther(pool), len(participants), remaining)
	buttons := [][]Button{
		row(Button{"Enter", CodeEnter}, Button{"Quick Enter", CodeQuickEnter}),
		row(Button{"Refresh", CodeRefresh}, Button{"Back", CodeEnd}),
	}

	msg := withButtons(body, buttons)
	msg.Edit = ev.Kind == EventCallback
	return &Outcome{Reply: reply(msg), Next: StateRoundMenu}, nil
}

// QuickEnter stakes the wallet's whole balance minus one unit of headroom.
func (h *Handlers) QuickEnter(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	res, stake, err := h.pipeline.QuickEnter(ctx, w)
	if errors.Is(err, services.ErrInsufficientBalance) {
		return &Outcome{Reply: reply(edited("Not enough balance", backRow())), Next: StateRoundMenu}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Reply: reply(
			text(fmt.Sprintf("Entered with %s\nTxn hash: %s", services.FormatEther(stake), h.txURL(res.Hash))),
			withButtons("Completed", backRow()),
		),
		Next: StateRoundMenu,
	}, nil
}

// ===== third level: enter flow =====

// EnterMenu prompts for a manual stake.
func (h *Handlers) EnterMenu(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}
	balance, err := h.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Balance: %s\nType the amount you want to bet,\nmust be a multiple of 0.001E", services.FormatEther(balance))
	buttons := [][]Button{
		row(Button{"Proceed", CodeAmount}),
		row(Button{"Cancel", CodeEnd}),
	}
	msg := withButtons(body, buttons)
	msg.Edit = ev.Kind == EventCallback
	return &Outcome{Reply: reply(msg), Next: StateEnterAmount}, nil
}

// AskAmount acknowledges Proceed and waits for a typed stake.
func (h *Handlers) AskAmount(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	return &Outcome{Reply: reply(edited("Okay, tell me.", nil)), Next: StateEnterTyping}, nil
}

// PlaceBet parses the typed stake and enters the round. Malformed input or
// a stake above the balance re-prompts instead of advancing state.
func (h *Handlers) PlaceBet(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	stake, err := services.ParseAmountWei(ev.Text)
	if errors.Is(err, services.ErrBadInput) {
		return h.repromptStake(ctx, w)
	}
	if err != nil {
		return nil, err
	}

	res, err := h.pipeline.EnterRound(ctx, w, stake)
	if errors.Is(err, services.ErrInsufficientBalance) {
		return h.repromptStake(ctx, w)
	}
	if err != nil {
		return nil, err
	}

	// Back to the stake prompt so the user can enter again or cancel.
	menu, err := h.EnterMenu(ctx, s, ev)
	if err != nil {
		return nil, err
	}
	msgs := append([]Message{text("Txn hash: " + h.txURL(res.Hash))}, menu.Reply.Messages...)
	return &Outcome{Reply: reply(msgs...), Next: menu.Next}, nil
}

func (h *Handlers) repromptStake(ctx context.Context, w *wallet.Wallet) (*Outcome, error) {
	balance, err := h.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Reply: reply(
			text("Invalid input try again!"),
			text("Available balance: "+services.FormatEther(balance)),
		),
		Next: StateEnterTyping,
	}, nil
}

// ===== second level: claim winnings =====

// ClaimMenu lists rounds with unclaimed winnings. Also the Refresh target.
func (h *Handlers) ClaimMenu(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	pending, err := h.client.PendingWinnings(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, id := range pending {
		ids = append(ids, id.String())
	}
	body := "Pending winning round ids: none"
	if len(ids) > 0 {
		body = "Pending winning round ids: " + strings.Join(ids, ", ")
	}

	buttons := [][]Button{
		row(Button{"Claim", CodeClaim}),
		row(Button{"Refresh", CodeRefresh}),
		row(Button{"Back", CodeEnd}),
	}
	msg := withButtons(body, buttons)
	msg.Edit = ev.Kind == EventCallback
	return &Outcome{Reply: reply(msg), Next: StateClaimMenu}, nil
}

// Claim claims every pending round sequentially and reports the total.
func (h *Handlers) Claim(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	result, err := h.pipeline.ClaimAll(ctx, w)
	if err != nil {
		// A mid-run failure still settled the preceding rounds; the user
		// must see which ones before the error text.
		if result != nil && len(result.Claimed) > 0 {
			h.logger.WithFields(logrus.Fields{
				"user_id": s.UserID,
				"claimed": len(result.Claimed),
			}).Warn("claim run failed partway")
			ids := make([]string, 0, len(result.Claimed))
			for _, c := range result.Claimed {
				ids = append(ids, c.RoundID.String())
			}
			partial := fmt.Sprintf("Claimed %s from rounds %s before the failure.",
				services.FormatEther(result.Total), strings.Join(ids, ", "))
			return &Outcome{Reply: reply(text(partial))}, err
		}
		return nil, err
	}

	return &Outcome{
		Reply: reply(edited("Claimed "+services.FormatEther(result.Total), backRow())),
		Next:  StateClaimMenu,
	}, nil
}

// ===== third level: withdraw flow =====

// WithdrawMenu gates the flow on a minimum balance and prompts for the
// destination address.
func (h *Handlers) WithdrawMenu(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}
	balance, err := h.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	if balance.Cmp(services.MinWithdrawBalance()) < 0 {
		return &Outcome{Reply: reply(edited("Not enough balance", backRow())), Next: StateWithdrawAddress}, nil
	}

	buttons := [][]Button{
		row(Button{"Proceed", CodeAddress}),
		row(Button{"Back", CodeEnd}),
	}
	return &Outcome{
		Reply: reply(edited("Please type the address that you want to withdraw to.", buttons)),
		Next:  StateWithdrawAddress,
	}, nil
}

// AskAddress acknowledges Proceed and waits for a typed address.
func (h *Handlers) AskAddress(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	return &Outcome{Reply: reply(edited("Okay, tell me.", nil)), Next: StateWithdrawProcessAddr}, nil
}

// ProcessAddress validates the typed destination and moves on to the
// amount prompt; a bad address re-prompts in place.
func (h *Handlers) ProcessAddress(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	addr := strings.TrimSpace(ev.Text)
	if !common.IsHexAddress(addr) {
		return &Outcome{Reply: reply(text("Invalid address try again!")), Next: StateWithdrawProcessAddr}, nil
	}
	s.WithdrawAddress = common.HexToAddress(addr)

	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}
	balance, err := h.client.Balance(ctx, w.Address)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Reply: reply(
			text("Type the amount to withdraw"),
			text("Available balance: "+services.FormatEther(balance)),
		),
		Next: StateWithdrawTyping,
	}, nil
}

// WithdrawAll parses the typed amount and sends the clamped transfer.
func (h *Handlers) WithdrawAll(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	w, _, err := h.wallets.GetOrCreate(s.UserID)
	if err != nil {
		return nil, err
	}

	requested, err := services.ParseAmountWei(ev.Text)
	if errors.Is(err, services.ErrBadInput) {
		balance, berr := h.client.Balance(ctx, w.Address)
		if berr != nil {
			return nil, berr
		}
		return &Outcome{
			Reply: reply(
				text("Type the amount to withdraw"),
				text("Available balance: "+services.FormatEther(balance)),
			),
			Next: StateWithdrawTyping,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	res, sent, err := h.pipeline.Withdraw(ctx, w, s.WithdrawAddress, requested)
	if errors.Is(err, services.ErrInsufficientBalance) {
		return &Outcome{Reply: reply(withButtons("Not enough balance", backRow())), Next: StateWithdrawTyping}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Reply: reply(
			text(fmt.Sprintf("Sent %s\nTxn hash: %s", services.FormatEther(sent), h.txURL(res.Hash))),
			text("Completed"),
		),
		Next: StateEndLevel,
	}, nil
}
