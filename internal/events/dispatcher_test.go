package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishInvokesEveryHandlerDespiteErrors(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())
	var calls []string
	d.Subscribe(EventTicketAssigned, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketAssigned, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.Identity)
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		calls = append(calls, "closed")
		return nil
	})

	ev := New(EventTicketAssigned, "+100", "t-1", nil, time.Now(), TicketAssignedPayload{Number: "TKT-202603-00001"})
	require.NoError(t, d.Publish(context.Background(), ev))
	assert.Equal(t, []string{"first", "second:+100"}, calls)
	assert.NotEmpty(t, ev.ID)
}
