package bot

// State identifies where a user's conversation is. The namespace is flat
// but states belong to nesting levels; levelOf and parentResume in the
// machine encode the hierarchy.
type State int

const (
	// StateNone is a session that never started or was stopped.
	StateNone State = iota

	// Top level.
	StateSelectingAction // main menu shown, awaiting a selection
	StateShowing         // a one-off screen (deposit, history, settings) awaiting Back

	// Second level.
	StateRoundMenu // current-round menu
	StateClaimMenu // claim-winnings menu

	// Third level: enter flow.
	StateEnterAmount // enter prompt shown, awaiting Proceed
	StateEnterTyping // awaiting a typed stake

	// Third level: withdraw flow.
	StateWithdrawAddress     // withdraw prompt shown, awaiting Proceed
	StateWithdrawProcessAddr // awaiting a typed destination address
	StateWithdrawTyping      // awaiting a typed amount

	// StateStopped is the terminal state of the whole machine.
	StateStopped

	// StateEndLevel is a pseudo-state a handler returns to terminate its
	// nesting level; the machine maps it to the enclosing level's resume
	// state. It is never stored in a session.
	StateEndLevel
)

// Level is one nesting tier of the conversation.
type Level int

const (
	LevelTop Level = iota
	LevelRound
	LevelClaim
	LevelEnter
	LevelWithdraw
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateSelectingAction:
		return "selecting_action"
	case StateShowing:
		return "showing"
	case StateRoundMenu:
		return "round_menu"
	case StateClaimMenu:
		return "claim_menu"
	case StateEnterAmount:
		return "enter_amount"
	case StateEnterTyping:
		return "enter_typing"
	case StateWithdrawAddress:
		return "withdraw_address"
	case StateWithdrawProcessAddr:
		return "withdraw_process_address"
	case StateWithdrawTyping:
		return "withdraw_typing"
	case StateStopped:
		return "stopped"
	case StateEndLevel:
		return "end_level"
	}
	return "unknown"
}

// Callback codes carried by inline buttons. These are the wire contract
// with the chat transport; a button press delivers exactly one code.
const (
	CodeCurrentRound  = "current_round"
	CodeClaimWinnings = "claim_winnings"
	CodeDeposit       = "deposit"
	CodeWithdraw      = "withdraw"
	CodeHistory       = "history"
	CodeSettings      = "settings"
	CodeEnd           = "end"
	CodeEnter         = "enter"
	CodeQuickEnter    = "quick_enter"
	CodeRefresh       = "refresh"
	CodeClaim         = "claim"
	CodeAmount        = "get_amount"
	CodeAddress       = "get_address"
)
