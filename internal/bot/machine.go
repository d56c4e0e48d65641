package bot

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"lottery-bot/internal/clients"
	"lottery-bot/internal/metrics"
	"lottery-bot/internal/services"
)

// keyText routes free-form text input inside a state's dispatch row.
const keyText = "#text"

// Machine drives every conversation. All transitions live in one flat
// table keyed by state and input, and the nesting of the original menu
// hierarchy is expressed only through levelOf and resume: when a handler
// returns StateEndLevel the machine looks up the enclosing level's resume
// renderer and appends its output.
type Machine struct {
	handlers *Handlers
	store    *SessionStore
	logger   *logrus.Logger

	table   map[State]map[string]Handler
	levelOf map[State]Level
	resume  map[Level]Handler
}

// NewMachine builds the dispatch tables.
func NewMachine(handlers *Handlers, store *SessionStore, logger *logrus.Logger) *Machine {
	m := &Machine{
		handlers: handlers,
		store:    store,
		logger:   logger,
	}

	m.table = map[State]map[string]Handler{
		StateSelectingAction: {
			CodeCurrentRound:  handlers.RoundMenu,
			CodeClaimWinnings: handlers.ClaimMenu,
			CodeDeposit:       handlers.Deposit,
			CodeWithdraw:      handlers.WithdrawMenu,
			CodeHistory:       handlers.History,
			CodeSettings:      handlers.Settings,
			CodeEnd:           handlers.End,
		},
		StateShowing: {
			CodeEnd: handlers.Start,
		},
		StateRoundMenu: {
			CodeEnter:      handlers.EnterMenu,
			CodeQuickEnter: handlers.QuickEnter,
			CodeRefresh:    handlers.RoundMenu,
			CodeEnd:        m.endLevel,
		},
		StateClaimMenu: {
			CodeClaim:   handlers.Claim,
			CodeRefresh: handlers.ClaimMenu,
			CodeEnd:     m.endLevel,
		},
		StateEnterAmount: {
			CodeAmount: handlers.AskAmount,
			CodeEnd:    m.endLevel,
		},
		StateEnterTyping: {
			keyText: handlers.PlaceBet,
			CodeEnd: m.endLevel,
		},
		StateWithdrawAddress: {
			CodeAddress: handlers.AskAddress,
			CodeEnd:     m.endLevel,
		},
		StateWithdrawProcessAddr: {
			keyText: handlers.ProcessAddress,
			CodeEnd: m.endLevel,
		},
		StateWithdrawTyping: {
			keyText: handlers.WithdrawAll,
			CodeEnd: m.endLevel,
		},
	}

	m.levelOf = map[State]Level{
		StateSelectingAction:     LevelTop,
		StateShowing:             LevelTop,
		StateRoundMenu:           LevelRound,
		StateClaimMenu:           LevelClaim,
		StateEnterAmount:         LevelEnter,
		StateEnterTyping:         LevelEnter,
		StateWithdrawAddress:     LevelWithdraw,
		StateWithdrawProcessAddr: LevelWithdraw,
		StateWithdrawTyping:      LevelWithdraw,
	}

	// Where each level resumes when it ends. The enter flow sits inside
	// the round menu; everything else returns to the main menu.
	m.resume = map[Level]Handler{
		LevelTop:      handlers.Start,
		LevelRound:    handlers.Start,
		LevelClaim:    handlers.Start,
		LevelEnter:    handlers.RoundMenu,
		LevelWithdraw: handlers.Start,
	}

	return m
}

// endLevel is the shared Back handler for every nested menu.
func (m *Machine) endLevel(ctx context.Context, s *Session, ev Event) (*Outcome, error) {
	return &Outcome{Next: StateEndLevel}, nil
}

// Dispatch processes one inbound event and returns what to send back.
// A nil reply with nil error means the event was ignored.
func (m *Machine) Dispatch(ctx context.Context, ev Event) (*Reply, error) {
	s := m.store.GetOrCreate(ev.UserID, ev.ChatID)

	// One event per session at a time. A rapid double-tap while a
	// transaction is confirming gets told to wait instead of queueing a
	// duplicate behind the first.
	if !s.mu.TryLock() {
		return reply(text("Hold on, still working on your last request.")), nil
	}
	defer s.mu.Unlock()

	metrics.EventsHandled.WithLabelValues(ev.Kind.String()).Inc()

	if ev.Kind == EventCommand {
		switch ev.Command {
		case "start":
			return m.run(ctx, s, ev, m.handlers.Start)
		case "stop":
			if s.State == StateNone || s.State == StateStopped {
				return nil, nil
			}
			return m.run(ctx, s, ev, m.handlers.Stop)
		default:
			return nil, nil
		}
	}

	if s.State == StateNone || s.State == StateStopped {
		return nil, nil
	}

	var hnd Handler
	switch ev.Kind {
	case EventCallback:
		hnd = m.table[s.State][ev.Callback]
	case EventText:
		hnd = m.table[s.State][keyText]
	}
	if hnd == nil {
		m.logger.WithFields(logrus.Fields{
			"user_id":  ev.UserID,
			"state":    s.State.String(),
			"callback": ev.Callback,
		}).Debug("ignoring event with no transition")
		return nil, nil
	}

	return m.run(ctx, s, ev, hnd)
}

func (m *Machine) run(ctx context.Context, s *Session, ev Event, hnd Handler) (*Reply, error) {
	out, err := hnd(ctx, s, ev)
	if err != nil {
		translated := m.translateError(s, ev, err)
		// A handler may return a partial reply alongside its error, for
		// work that already took effect before the failure. It precedes
		// the error text.
		if out != nil && out.Reply != nil {
			translated.Reply.Messages = append(out.Reply.Messages, translated.Reply.Messages...)
		}
		out = translated
	}
	if out == nil {
		return nil, nil
	}

	if out.Next == StateEndLevel {
		lvl := m.levelOf[s.State]
		render, ok := m.resume[lvl]
		if !ok {
			render = m.handlers.Start
		}
		s.StartOver = true
		resumed, rerr := render(ctx, s, ev)
		if rerr != nil {
			resumed = m.translateError(s, ev, rerr)
		}
		var msgs []Message
		if out.Reply != nil {
			msgs = append(msgs, out.Reply.Messages...)
		}
		if resumed.Reply != nil {
			msgs = append(msgs, resumed.Reply.Messages...)
		}
		s.State = resumed.Next
		return reply(msgs...), nil
	}

	s.State = out.Next
	return out.Reply, nil
}

// translateError maps component errors onto user-visible replies and a
// recovery state. It is the only place failures become text.
func (m *Machine) translateError(s *Session, ev Event, err error) *Outcome {
	anchor := m.menuAnchor(s.State)

	var ambiguous *services.AmbiguousTxError
	var rpcErr *clients.RPCError
	switch {
	case errors.Is(err, services.ErrWalletBusy):
		return &Outcome{
			Reply: reply(text("Previous transaction is still in flight, hold on.")),
			Next:  s.State,
		}
	case errors.Is(err, services.ErrInsufficientBalance):
		msg := withButtons("Not enough balance", backRow())
		msg.Edit = ev.Kind == EventCallback
		return &Outcome{Reply: reply(msg), Next: anchor}
	case errors.Is(err, services.ErrBadInput):
		return &Outcome{Reply: reply(text("Invalid input try again!")), Next: s.State}
	case errors.As(err, &ambiguous):
		body := "Transaction was submitted but its confirmation timed out.\n" +
			"Do not retry until it settles on chain.\n" +
			"Txn hash: " + m.handlers.txURL(ambiguous.Hash)
		return &Outcome{Reply: reply(withButtons(body, backRow())), Next: anchor}
	case errors.As(err, &rpcErr):
		msg := withButtons(err.Error(), backRow())
		msg.Edit = ev.Kind == EventCallback
		return &Outcome{Reply: reply(msg), Next: anchor}
	default:
		m.logger.WithFields(logrus.Fields{
			"user_id": s.UserID,
			"state":   s.State.String(),
		}).WithError(err).Error("handler failed")
		msg := withButtons(err.Error(), backRow())
		msg.Edit = ev.Kind == EventCallback
		return &Outcome{Reply: reply(msg), Next: anchor}
	}
}

// menuAnchor is the state errors recover to: the nearest menu with a Back
// button, so the user can always climb out of a failed flow.
func (m *Machine) menuAnchor(state State) State {
	switch m.levelOf[state] {
	case LevelRound, LevelEnter:
		return StateRoundMenu
	case LevelClaim:
		return StateClaimMenu
	case LevelWithdraw:
		return StateWithdrawAddress
	default:
		return StateSelectingAction
	}
}
