package bot

import (
	"context"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery-bot/internal/clients"
	"lottery-bot/internal/clients/clientstest"
	"lottery-bot/internal/services"
	"lottery-bot/internal/wallet"
)

const testUser int64 = 1001

func newTestMachine(t *testing.T, backend *clientstest.Backend) (*Machine, *SessionStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	contract := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	client := clients.NewLotteryClient(backend, contract, logger)
	registry := wallet.NewRegistry(logger)
	pipeline := services.NewPipeline(client, 80001, 300_000, nil, 50*time.Millisecond, logger)
	history := services.NewHistoryService(client, logger)

	handlers := NewHandlers(registry, client, pipeline, history, ChainInfo{
		Network:         "polygon-mumbai",
		ChainID:         80001,
		Contract:        contract.Hex(),
		ExplorerBaseURL: "https://mumbai.polygonscan.com/tx/",
	}, logger)

	store := NewSessionStore()
	return NewMachine(handlers, store, logger), store
}

func setRoundViews(t *testing.T, backend *clientstest.Backend) {
	t.Helper()
	require.NoError(t, backend.SetView("marketId", big.NewInt(7)))
	require.NoError(t, backend.SetView("getRoundAmount", big.NewInt(10_000_000_000_000_000)))
	require.NoError(t, backend.SetView("getRoundParticipants", []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000dd"),
	}))
	require.NoError(t, backend.SetView("marketIdToExpiration", big.NewInt(time.Now().Unix()+600)))
}

func cmd(name string) Event {
	return Event{UserID: testUser, ChatID: testUser, Kind: EventCommand, Command: name}
}

func cb(code string) Event {
	return Event{UserID: testUser, ChatID: testUser, MessageID: 1, Kind: EventCallback, Callback: code}
}

func txt(s string) Event {
	return Event{UserID: testUser, ChatID: testUser, Kind: EventText, Text: s}
}

func replyText(r *Reply) string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, m := range r.Messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

func stateOf(t *testing.T, store *SessionStore) State {
	t.Helper()
	s, ok := store.Get(testUser)
	require.True(t, ok)
	return s.State
}

func dispatch(t *testing.T, m *Machine, ev Event) *Reply {
	t.Helper()
	r, err := m.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	return r
}

// backendClaimLog mimics the ClaimedWinnings log whose data carries the
// claimed amount.
func backendClaimLog(amount *big.Int) *types.Log {
	return &types.Log{Data: common.BigToHash(amount).Bytes()}
}

func TestStartCreatesWalletAndShowsMenu(t *testing.T) {
	m, store := newTestMachine(t, clientstest.New())

	r := dispatch(t, m, cmd("start"))
	require.NotNil(t, r)

	body := replyText(r)
	assert.Contains(t, body, "Hello this is PredictionBot by VenueOne.")
	assert.Contains(t, body, "This is your first login. Creating a wallet for you")
	assert.Contains(t, body, "Wallet address: 0x")
	assert.Contains(t, body, "Balance: 1")
	assert.Equal(t, StateSelectingAction, stateOf(t, store))

	menu := r.Messages[len(r.Messages)-1]
	require.Len(t, menu.Buttons, 3)

	// A second /start greets again but creates nothing.
	r = dispatch(t, m, cmd("start"))
	assert.NotContains(t, replyText(r), "first login")
}

func TestEventsBeforeStartAreIgnored(t *testing.T) {
	m, _ := newTestMachine(t, clientstest.New())

	assert.Nil(t, dispatch(t, m, cb(CodeCurrentRound)))
	assert.Nil(t, dispatch(t, m, txt("0.5")))
	assert.Nil(t, dispatch(t, m, cmd("stop")))
}

func TestUnknownCallbackInStateIsIgnored(t *testing.T) {
	m, store := newTestMachine(t, clientstest.New())
	dispatch(t, m, cmd("start"))

	assert.Nil(t, dispatch(t, m, cb("no_such_code")))
	assert.Nil(t, dispatch(t, m, txt("stray text in a menu")))
	assert.Equal(t, StateSelectingAction, stateOf(t, store))
}

func TestBusySessionRejectsInsteadOfQueueing(t *testing.T) {
	m, store := newTestMachine(t, clientstest.New())
	dispatch(t, m, cmd("start"))

	s, ok := store.Get(testUser)
	require.True(t, ok)
	s.mu.Lock()
	defer s.mu.Unlock()

	r := dispatch(t, m, cb(CodeCurrentRound))
	require.NotNil(t, r)
	assert.Contains(t, replyText(r), "still working")
	assert.Equal(t, StateSelectingAction, s.State, "a rejected event must not transition")
}

func TestEndFromMainMenuTerminates(t *testing.T) {
	m, store := newTestMachine(t, clientstest.New())
	dispatch(t, m, cmd("start"))

	r := dispatch(t, m, cb(CodeEnd))
	assert.Contains(t, replyText(r), "See you around!")
	assert.Equal(t, StateStopped, stateOf(t, store))

	// Terminated sessions only react to /start.
	assert.Nil(t, dispatch(t, m, cb(CodeCurrentRound)))
	require.NotNil(t, dispatch(t, m, cmd("start")))
	assert.Equal(t, StateSelectingAction, stateOf(t, store))
}

func TestStopFromThirdLevelBypassesParents(t *testing.T) {
	backend := clientstest.New()
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	dispatch(t, m, cb(CodeAmount))
	require.Equal(t, StateEnterTyping, stateOf(t, store))

	r := dispatch(t, m, cmd("stop"))
	assert.Contains(t, replyText(r), "Okay, bye.")
	assert.Equal(t, StateStopped, stateOf(t, store))
	assert.Nil(t, dispatch(t, m, txt("0.002")), "no handler may run after /stop")
}

func TestRoundMenuShowsRoundAndBackReturnsToMainMenu(t *testing.T) {
	backend := clientstest.New()
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	r := dispatch(t, m, cb(CodeCurrentRound))
	body := replyText(r)
	assert.Contains(t, body, "Current round: 7")
	assert.Contains(t, body, "Total players entered: 1")
	assert.Equal(t, StateRoundMenu, stateOf(t, store))

	r = dispatch(t, m, cb(CodeEnd))
	require.NotNil(t, r)
	assert.Contains(t, replyText(r), "Wallet address:")
	assert.Equal(t, StateSelectingAction, stateOf(t, store))

	menu := r.Messages[len(r.Messages)-1]
	assert.True(t, menu.Edit, "returning to the main menu edits in place")
}

func TestBackFromEnterFlowResumesRoundMenu(t *testing.T) {
	backend := clientstest.New()
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	require.Equal(t, StateEnterAmount, stateOf(t, store))

	r := dispatch(t, m, cb(CodeEnd))
	assert.Contains(t, replyText(r), "Current round: 7")
	assert.Equal(t, StateRoundMenu, stateOf(t, store))
}

func TestMalformedStakeReprompts(t *testing.T) {
	backend := clientstest.New()
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	dispatch(t, m, cb(CodeAmount))

	r := dispatch(t, m, txt("not a number"))
	body := replyText(r)
	assert.Contains(t, body, "Invalid input try again!")
	assert.Contains(t, body, "Available balance:")
	assert.Equal(t, StateEnterTyping, stateOf(t, store))
	assert.Empty(t, backend.Sent)
}

func TestOversizedStakeReprompts(t *testing.T) {
	backend := clientstest.New()
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	dispatch(t, m, cb(CodeAmount))

	r := dispatch(t, m, txt("5")) // balance is 1 ether
	assert.Contains(t, replyText(r), "Invalid input try again!")
	assert.Equal(t, StateEnterTyping, stateOf(t, store))
	assert.Empty(t, backend.Sent)
}

func TestManualStakeSubmits(t *testing.T) {
	backend := clientstest.New()
	backend.MineOnSend = true
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	dispatch(t, m, cb(CodeAmount))

	r := dispatch(t, m, txt("0.002"))
	assert.Contains(t, replyText(r), "Txn hash: https://mumbai.polygonscan.com/tx/0x")
	assert.Equal(t, StateEnterAmount, stateOf(t, store), "flow returns to the stake prompt")

	require.Len(t, backend.Sent, 1)
	assert.Zero(t, big.NewInt(2_000_000_000_000_000).Cmp(backend.Sent[0].Value()))
}

func TestQuickEnterWithLowBalance(t *testing.T) {
	backend := clientstest.New()
	backend.Balance = big.NewInt(1_000_000_000_000_000)
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))

	r := dispatch(t, m, cb(CodeQuickEnter))
	assert.Contains(t, replyText(r), "Not enough balance")
	assert.Equal(t, StateRoundMenu, stateOf(t, store))
	assert.Empty(t, backend.Sent)
}

func TestAmbiguousTransactionIsReportedDistinctly(t *testing.T) {
	backend := clientstest.New()
	backend.MineOnSend = false // receipt wait will hit its deadline
	setRoundViews(t, backend)
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeCurrentRound))
	dispatch(t, m, cb(CodeEnter))
	dispatch(t, m, cb(CodeAmount))

	r := dispatch(t, m, txt("0.002"))
	body := replyText(r)
	assert.Contains(t, body, "confirmation timed out")
	assert.Contains(t, body, "Txn hash: https://mumbai.polygonscan.com/tx/0x")
	require.Len(t, backend.Sent, 1, "ambiguous transactions are never retried")
	assert.Equal(t, StateRoundMenu, stateOf(t, store))
}

func TestClaimMenuAndClaim(t *testing.T) {
	backend := clientstest.New()
	backend.MineOnSend = true
	amount := big.NewInt(5_000_000_000_000_000)
	backend.ReceiptLogs = append(backend.ReceiptLogs, backendClaimLog(amount))
	require.NoError(t, backend.SetView("filterPendingWinningEntriesForUser", []*big.Int{big.NewInt(3)}))
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	r := dispatch(t, m, cb(CodeClaimWinnings))
	assert.Contains(t, replyText(r), "Pending winning round ids: 3")
	assert.Equal(t, StateClaimMenu, stateOf(t, store))

	r = dispatch(t, m, cb(CodeClaim))
	assert.Contains(t, replyText(r), "Claimed 0.005")
	assert.Equal(t, StateClaimMenu, stateOf(t, store))
	require.Len(t, backend.Sent, 1)
}

func TestClaimFailureReportsRoundsAlreadySettled(t *testing.T) {
	backend := clientstest.New()
	backend.MineOnSend = true
	amount := big.NewInt(5_000_000_000_000_000)
	backend.ReceiptLogs = append(backend.ReceiptLogs, backendClaimLog(amount))
	backend.SendErr = errors.New("nonce too low")
	backend.SendErrAfter = 1 // the second claim breaks mid-run
	require.NoError(t, backend.SetView("filterPendingWinningEntriesForUser", []*big.Int{big.NewInt(3), big.NewInt(7)}))
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	dispatch(t, m, cb(CodeClaimWinnings))

	r := dispatch(t, m, cb(CodeClaim))
	body := replyText(r)
	assert.Contains(t, body, "Claimed 0.005 from rounds 3 before the failure.")
	assert.Contains(t, body, "nonce too low")
	assert.Equal(t, StateClaimMenu, stateOf(t, store))
	require.Len(t, backend.Sent, 1)
}

func TestWithdrawFlowEndToEnd(t *testing.T) {
	backend := clientstest.New()
	backend.MineOnSend = true
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	r := dispatch(t, m, cb(CodeWithdraw))
	assert.Contains(t, replyText(r), "Please type the address that you want to withdraw to.")
	require.Equal(t, StateWithdrawAddress, stateOf(t, store))

	dispatch(t, m, cb(CodeAddress))
	require.Equal(t, StateWithdrawProcessAddr, stateOf(t, store))

	r = dispatch(t, m, txt("not an address"))
	assert.Contains(t, replyText(r), "Invalid address try again!")
	require.Equal(t, StateWithdrawProcessAddr, stateOf(t, store))

	r = dispatch(t, m, txt("0x00000000000000000000000000000000000000bb"))
	assert.Contains(t, replyText(r), "Type the amount to withdraw")
	require.Equal(t, StateWithdrawTyping, stateOf(t, store))

	r = dispatch(t, m, txt("0.5"))
	body := replyText(r)
	assert.Contains(t, body, "Completed")
	assert.Contains(t, body, "Wallet address:", "the main menu is re-rendered after the flow ends")
	assert.Equal(t, StateSelectingAction, stateOf(t, store))

	require.Len(t, backend.Sent, 1)
	tx := backend.Sent[0]
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000bb"), *tx.To())
	assert.Zero(t, big.NewInt(500_000_000_000_000_000).Cmp(tx.Value()))
}

func TestWithdrawBlockedBelowMinimumBalance(t *testing.T) {
	backend := clientstest.New()
	backend.Balance = big.NewInt(1_000_000_000_000) // below the withdraw floor
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	r := dispatch(t, m, cb(CodeWithdraw))
	assert.Contains(t, replyText(r), "Not enough balance")
	assert.Equal(t, StateWithdrawAddress, stateOf(t, store))
}

func TestHistoryAndDepositShowAndReturn(t *testing.T) {
	backend := clientstest.New()
	m, store := newTestMachine(t, backend)

	dispatch(t, m, cmd("start"))
	r := dispatch(t, m, cb(CodeHistory))
	body := replyText(r)
	assert.Contains(t, body, "Fetching history for the past 24 hours")
	assert.Contains(t, body, "No round entries found")
	assert.Equal(t, StateShowing, stateOf(t, store))

	// Back edits the showing message back into the main menu.
	r = dispatch(t, m, cb(CodeEnd))
	assert.Contains(t, replyText(r), "Wallet address:")
	assert.Equal(t, StateSelectingAction, stateOf(t, store))

	r = dispatch(t, m, cb(CodeDeposit))
	require.NotNil(t, r)
	assert.True(t, r.Messages[0].Monospace, "the deposit address renders monospace")
	assert.Equal(t, StateShowing, stateOf(t, store))
}
