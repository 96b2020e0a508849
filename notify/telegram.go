package notify

import (
	"fmt"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/logger"
)

// Telegram is an outbound-only Notifier over gopkg.in/tucnak/telebot.v2.
// Inbound commands are not handled; only Notify/OnOrder/OnError are
// implemented.
type Telegram struct {
	client *tb.Bot
	chatID int64
	log    logger.Logger
}

// NewTelegram builds a Telegram notifier with a long-polling bot
// client.
func NewTelegram(token string, chatID int64, log logger.Logger) (*Telegram, error) {
	client, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &Telegram{client: client, chatID: chatID, log: log}, nil
}

func (t *Telegram) recipient() tb.Recipient {
	return &tb.Chat{ID: t.chatID}
}

// Notify sends a free-text status message.
func (t *Telegram) Notify(message string) {
	if _, err := t.client.Send(t.recipient(), message); err != nil {
		t.log.WithError(err).Warn("notify: telegram send failed")
	}
}

// OnOrder reports one OrderAction's fill outcome.
func (t *Telegram) OnOrder(action core.OrderAction, fill core.FillResult) {
	if !fill.Success {
		t.Notify(fmt.Sprintf("order rejected: %s %s %s qty=%d: %s",
			action.Symbol, action.SubSymbol, action.Action, action.Quantity, fill.Message))
		return
	}
	t.Notify(fmt.Sprintf("%s %s %s qty=%d @ %.0f (%s)",
		action.Symbol, action.SubSymbol, action.Action, fill.FillQty, fill.FillPrice, action.Reason))
}

// OnError reports a driver-level error.
func (t *Telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("error: %v", err))
}
