// Package notify pushes dispatch events to the operations Telegram chat.
package notify

import (
	"encoding/json"
	"fmt"

	"dispatchboard/internal/config"
	"dispatchboard/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// MessageSender is the slice of tgbotapi.BotAPI the notifier needs.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier turns board and field events into chat messages. Delivery
// is best effort: a failed send is logged and dropped, never retried.
type TelegramNotifier struct {
	bot    MessageSender
	chatID int64
	log    zerolog.Logger
}

func NewTelegramNotifier(bot MessageSender, chatID int64, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		log:    logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// Register subscribes the notifier to every event type it renders.
func (n *TelegramNotifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventDriverArrived, n.handle)
	bus.Subscribe(events.EventGeofenceExit, n.handle)
	bus.Subscribe(events.EventProblemReported, n.handle)
	bus.Subscribe(events.EventJobDelivered, n.handle)
	bus.Subscribe(events.EventCapacityRejected, n.handle)
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	var p events.JobEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		n.log.Error().Err(err).Str("event", event.Type).Msg("failed to decode event payload")
		return nil
	}

	text := n.render(event.Type, p)
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Str("event", event.Type).Int64("job_id", p.JobID).Msg("failed to send notification")
	}
	return nil
}

func (n *TelegramNotifier) render(eventType string, p events.JobEventPayload) string {
	switch eventType {
	case events.EventDriverArrived:
		return fmt.Sprintf("📍 Driver arrived at %s (job #%d)", p.CustomerName, p.JobID)
	case events.EventGeofenceExit:
		return fmt.Sprintf("🚚 Driver left %s without completing delivery (job #%d)", p.CustomerName, p.JobID)
	case events.EventProblemReported:
		return fmt.Sprintf("⚠️ Problem on job #%d (%s): %s", p.JobID, p.CustomerName, p.Detail)
	case events.EventJobDelivered:
		return fmt.Sprintf("✅ Delivered: %s (job #%d) by %s", p.CustomerName, p.JobID, p.ChangedBy)
	case events.EventCapacityRejected:
		return fmt.Sprintf("🟥 Board rejected job #%d: truck %d window %d is full", p.JobID, p.TruckID, p.TimeSlotID)
	default:
		return ""
	}
}
