package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/bot"
)

// Dispatcher is the conversation engine the adapter feeds.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev bot.Event) (*bot.Reply, error)
}

// Adapter bridges the Telegram Bot API and the state machine: updates in,
// replies out. It owns no conversation logic.
type Adapter struct {
	api         *tgbotapi.BotAPI
	dispatcher  Dispatcher
	pollTimeout int
	logger      *logrus.Logger
}

// New connects to the Telegram Bot API.
func New(token string, pollTimeout int, dispatcher Dispatcher, logger *logrus.Logger) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.WithField("username", api.Self.UserName).Info("connected to telegram")
	return &Adapter{
		api:         api,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

// Run long-polls for updates until the context is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = a.pollTimeout
	updates := a.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			// Updates fan out so one user's receipt wait never stalls
			// another user's menu. Per-session ordering is enforced by
			// the machine.
			go a.handleUpdate(ctx, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ev, ok := toEvent(update)
	if !ok {
		return
	}

	// Callback queries need an answer even when the machine ignores the
	// event, or the client keeps its spinner.
	if update.CallbackQuery != nil {
		if _, err := a.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			a.logger.WithError(err).Warn("answering callback query failed")
		}
	}

	out, err := a.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"user_id": ev.UserID,
		}).WithError(err).Error("dispatch failed")
		return
	}
	if out == nil {
		return
	}
	a.send(ev, out)
}

func toEvent(update tgbotapi.Update) (bot.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		// Message is optional on callback queries (absent for messages
		// too old to edit); without it there is nothing to reply to.
		if cq.Message == nil {
			return bot.Event{}, false
		}
		return bot.Event{
			UserID:    cq.From.ID,
			ChatID:    cq.Message.Chat.ID,
			MessageID: cq.Message.MessageID,
			Kind:      bot.EventCallback,
			Callback:  cq.Data,
		}, true
	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		return bot.Event{
			UserID:  msg.From.ID,
			ChatID:  msg.Chat.ID,
			Kind:    bot.EventCommand,
			Command: msg.Command(),
		}, true
	case update.Message != nil && update.Message.Text != "":
		msg := update.Message
		return bot.Event{
			UserID: msg.From.ID,
			ChatID: msg.Chat.ID,
			Kind:   bot.EventText,
			Text:   msg.Text,
		}, true
	}
	return bot.Event{}, false
}

func (a *Adapter) send(ev bot.Event, out *bot.Reply) {
	for _, msg := range out.Messages {
		markup := toMarkup(msg.Buttons)

		if msg.Edit && ev.Kind == bot.EventCallback {
			edit := tgbotapi.NewEditMessageText(ev.ChatID, ev.MessageID, renderText(msg))
			if markup != nil {
				edit.ReplyMarkup = markup
			}
			if msg.Monospace {
				edit.ParseMode = tgbotapi.ModeMarkdownV2
			}
			if _, err := a.api.Send(edit); err != nil {
				a.logger.WithError(err).Warn("editing message failed")
			}
			continue
		}

		send := tgbotapi.NewMessage(ev.ChatID, renderText(msg))
		if markup != nil {
			send.ReplyMarkup = *markup
		}
		if msg.Monospace {
			send.ParseMode = tgbotapi.ModeMarkdownV2
		}
		if _, err := a.api.Send(send); err != nil {
			a.logger.WithError(err).Warn("sending message failed")
		}
	}
}

func renderText(msg bot.Message) string {
	if !msg.Monospace {
		return msg.Text
	}
	return "`" + strings.ReplaceAll(msg.Text, "`", "") + "`"
}

func toMarkup(rows [][]bot.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Code))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}
