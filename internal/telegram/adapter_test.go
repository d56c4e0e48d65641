package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery-bot/internal/bot"
)

func TestToEventCommand(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 7},
			Chat: &tgbotapi.Chat{ID: 7},
			Text: "/start",
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: 6},
			},
		},
	}

	ev, ok := toEvent(update)
	require.True(t, ok)
	assert.Equal(t, bot.EventCommand, ev.Kind)
	assert.Equal(t, "start", ev.Command)
	assert.Equal(t, int64(7), ev.UserID)
}

func TestToEventCallback(t *testing.T) {
	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			From: &tgbotapi.User{ID: 9},
			Data: bot.CodeCurrentRound,
			Message: &tgbotapi.Message{
				MessageID: 33,
				Chat:      &tgbotapi.Chat{ID: 9},
			},
		},
	}

	ev, ok := toEvent(update)
	require.True(t, ok)
	assert.Equal(t, bot.EventCallback, ev.Kind)
	assert.Equal(t, bot.CodeCurrentRound, ev.Callback)
	assert.Equal(t, int64(9), ev.UserID)
	assert.Equal(t, 33, ev.MessageID)
}

func TestToEventText(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 5},
			Chat: &tgbotapi.Chat{ID: 5},
			Text: "0.002",
		},
	}

	ev, ok := toEvent(update)
	require.True(t, ok)
	assert.Equal(t, bot.EventText, ev.Kind)
	assert.Equal(t, "0.002", ev.Text)
}

func TestToEventIgnoresOtherUpdates(t *testing.T) {
	_, ok := toEvent(tgbotapi.Update{})
	assert.False(t, ok)

	// Callback queries can arrive without their originating message.
	_, ok = toEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		From: &tgbotapi.User{ID: 9},
		Data: bot.CodeCurrentRound,
	}})
	assert.False(t, ok)

	_, ok = toEvent(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 5},
		Chat: &tgbotapi.Chat{ID: 5},
	}})
	assert.False(t, ok, "messages without text carry nothing to dispatch")
}

func TestRenderTextMonospace(t *testing.T) {
	assert.Equal(t, "plain", renderText(bot.Message{Text: "plain"}))
	assert.Equal(t, "`0xabc`", renderText(bot.Message{Text: "0xabc", Monospace: true}))
}

func TestToMarkup(t *testing.T) {
	assert.Nil(t, toMarkup(nil))

	markup := toMarkup([][]bot.Button{
		{{Label: "Enter", Code: bot.CodeEnter}},
		{{Label: "Back", Code: bot.CodeEnd}},
	})
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "Enter", markup.InlineKeyboard[0][0].Text)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, bot.CodeEnter, *markup.InlineKeyboard[0][0].CallbackData)
}
