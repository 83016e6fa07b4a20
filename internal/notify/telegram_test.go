package notify

import (
	"testing"

	"dispatchboard/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, m.err
}

func setupNotifier(t *testing.T) (*mockSender, *events.EventBus) {
	sender := &mockSender{}
	bus := events.NewEventBus()
	n := NewTelegramNotifier(sender, 42, zerolog.Nop())
	n.Register(bus)
	return sender, bus
}

func TestNotifier_DriverArrived(t *testing.T) {
	sender, bus := setupNotifier(t)

	err := bus.PublishJSON(events.EventDriverArrived, events.JobEventPayload{
		JobID: 7, CustomerName: "Acme",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "Acme")
	assert.Contains(t, sender.sent[0].Text, "#7")
}

func TestNotifier_ProblemIncludesDetails(t *testing.T) {
	sender, bus := setupNotifier(t)

	err := bus.PublishJSON(events.EventProblemReported, events.JobEventPayload{
		JobID: 3, CustomerName: "Acme", Detail: "gate locked",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "gate locked")
}

func TestNotifier_CapacityRejected(t *testing.T) {
	sender, bus := setupNotifier(t)

	err := bus.PublishJSON(events.EventCapacityRejected, events.JobEventPayload{
		JobID: 9, TruckID: 2, TimeSlotID: 4,
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "truck 2")
}

func TestNotifier_UnregisteredEventIgnored(t *testing.T) {
	sender, bus := setupNotifier(t)

	err := bus.PublishJSON(events.EventJobScheduled, events.JobEventPayload{JobID: 1})
	require.NoError(t, err)

	assert.Empty(t, sender.sent)
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	sender := &mockSender{err: assert.AnError}
	bus := events.NewEventBus()
	NewTelegramNotifier(sender, 42, zerolog.Nop()).Register(bus)

	err := bus.PublishJSON(events.EventJobDelivered, events.JobEventPayload{JobID: 1})
	require.NoError(t, err)
	assert.Len(t, sender.sent, 1)
}
