package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/intake-desk/internal/dedup"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/observability"
)

func TestIntakeScenarioQueuesRequester(t *testing.T) {
	h := newHarness(t)

	steps := []struct {
		answer   string
		wantStep domain.IntakeStep
		contains string
	}{
		{"hi", domain.StepAwaitingName, "FULL NAME"},
		{"Jo", domain.StepAwaitingName, "at least 3 characters"},
		{"John Doe", domain.StepAwaitingPlate, "Thanks, *John Doe*"},
		{"ab12cd", domain.StepAwaitingPlate, "plate is not valid"},
		{"abc123", domain.StepAwaitingID, "Plate registered: *ABC123*"},
		{"12a34", domain.StepAwaitingID, "between 6 and 10 digits"},
		{"123456", domain.StepQueued, "TKT-202603-00001"},
	}
	for _, step := range steps {
		outcome := h.send(t, h.text("+100", step.answer))
		assert.Equal(t, OutcomeProcessed, outcome, step.answer)
		assert.Equal(t, step.wantStep, h.conversation(t, "+100").Step, step.answer)
		assert.Contains(t, h.notifier.Last().Text, step.contains, step.answer)
	}

	conv := h.conversation(t, "+100")
	assert.Equal(t, "John Doe", conv.DisplayName)
	assert.Equal(t, "ABC123", conv.Plate)
	assert.Equal(t, "123456", conv.NationalID)
	require.NotNil(t, conv.QueuedAt)
	assert.True(t, conv.QueuedAt.Equal(baseTime))
	require.NotNil(t, conv.QueuePosition)
	assert.Equal(t, 1, *conv.QueuePosition)
	assert.Contains(t, h.notifier.Last().Text, "number *1* in the queue")

	ticket, err := h.tickets.OpenForIdentity(context.Background(), "+100")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "TKT-202603-00001", ticket.Number)
	assert.Equal(t, 1, ticket.RequesterSeq)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, "Service request - requester: John Doe - plate: ABC123", ticket.Description)

	assert.Len(t, h.notifier.Sent(), len(steps))
	assert.Len(t, conv.Messages, 2*len(steps))
	for _, entry := range conv.Messages {
		if entry.Direction == domain.DirectionOutbound {
			assert.Equal(t, domain.DeliverySent, entry.Status)
			assert.NotEmpty(t, entry.ExternalID)
		}
	}
}

func TestReplayedInboundIsProcessedOnce(t *testing.T) {
	h := newHarness(t)
	ev := h.text("+100", "hello")

	assert.Equal(t, OutcomeProcessed, h.send(t, ev))
	before := h.conversation(t, "+100")

	assert.Equal(t, OutcomeDuplicate, h.send(t, ev))
	after := h.conversation(t, "+100")

	assert.Len(t, h.notifier.Sent(), 1)
	assert.Equal(t, before.Step, after.Step)
	assert.Len(t, after.Messages, len(before.Messages))
	assert.Equal(t, int64(1), h.metrics.Snapshot().DomainCounter[observability.CounterInboundDuplicate])
}

func TestReplayAfterGuardLossIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.send(t, h.text("+200", "hi"))
	answer := h.text("+200", "Ana Gomez")
	h.send(t, answer)
	before := h.conversation(t, "+200")
	sent := len(h.notifier.Sent())

	h.inbound.guard = dedup.NewMemoryGuard(time.Hour)
	assert.Equal(t, OutcomeDuplicate, h.send(t, answer))

	after := h.conversation(t, "+200")
	assert.Equal(t, before, after)
	assert.Equal(t, domain.StepAwaitingPlate, after.Step)
	assert.Len(t, h.notifier.Sent(), sent)
	assert.Equal(t, int64(1), h.metrics.Snapshot().DomainCounter[observability.CounterInboundDuplicate])
}

func TestEditAttemptIsRejected(t *testing.T) {
	h := newHarness(t)
	ticket := h.completeIntake(t, "+100")
	conv := h.conversation(t, "+100")

	edit := h.text("+100", "Mario Lopez")
	edit.ReferencedMessageID = "wamid.in.2"
	assert.Equal(t, OutcomeEditRejected, h.send(t, edit))

	assert.Contains(t, h.notifier.Last().Text, "Edits are not applied")
	after := h.conversation(t, "+100")
	assert.Equal(t, conv.DisplayName, after.DisplayName)
	assert.Equal(t, domain.StepQueued, after.Step)

	stored, err := h.tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, stored.Notes, 1)
	assert.Contains(t, stored.Notes[0].Text, "Edit attempt rejected")
	assert.Nil(t, stored.Notes[0].AuthorID)
}

func TestMediaIsAttachedToTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send(t, h.text("+300", "hello"))
	h.send(t, h.media("+300", "media-1", "bumper"))
	assert.Contains(t, h.notifier.Last().Text, "keep answering")
	assert.Equal(t, domain.StepAwaitingName, h.conversation(t, "+300").Step)

	for _, answer := range []string{"Ana Ruiz", "def456", "987654"} {
		h.send(t, h.text("+300", answer))
	}
	ticket, err := h.tickets.OpenForIdentity(ctx, "+300")
	require.NoError(t, err)
	require.Len(t, ticket.Attachments, 1)
	assert.Equal(t, "media-1", ticket.Attachments[0].MediaRef)
	assert.Equal(t, "bumper", ticket.Attachments[0].Caption)
	assert.Contains(t, h.notifier.Last().Text, "Files attached: 1")

	h.send(t, h.media("+300", "media-2", ""))
	assert.Contains(t, h.notifier.Last().Text, ticket.Number)
	assert.Equal(t, domain.StepQueued, h.conversation(t, "+300").Step)

	ticket, err = h.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, ticket.Attachments, 2)
	assert.Len(t, ticket.Notes, 1)
}

func TestClosedTicketStartsNewCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)

	first := h.completeIntake(t, "+200")
	_, err := h.tickets.Close(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Contains(t, h.notifier.Last().Text, "has been closed")

	h.clock.Advance(time.Minute)
	h.send(t, h.text("+200", "hi again"))
	conv := h.conversation(t, "+200")
	assert.Equal(t, domain.StepAwaitingName, conv.Step)
	assert.Empty(t, conv.DisplayName)
	assert.Nil(t, conv.QueuedAt)
	assert.Contains(t, h.notifier.Last().Text, "FULL NAME")

	for _, answer := range []string{"Maria Lopez", "xyz987", "1234567"} {
		h.send(t, h.text("+200", answer))
	}
	second, err := h.tickets.OpenForIdentity(ctx, "+200")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.RequesterSeq)
	assert.Equal(t, "TKT-202603-00002", second.Number)
}

func TestRestartedCycleOpensFreshTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)
	stale := h.completeIntake(t, "+100")

	_, err := h.queue.Restart(ctx, admin, "+100")
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	h.send(t, h.text("+100", "hello again"))
	h.send(t, h.media("+100", "media-9", "dent"))
	assert.Contains(t, h.notifier.Last().Text, "keep answering")
	for _, answer := range []string{"Jane Roe", "qwe456", "99999999"} {
		h.send(t, h.text("+100", answer))
	}

	fresh, err := h.tickets.OpenForIdentity(ctx, "+100")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.NotEqual(t, stale.ID, fresh.ID)
	assert.Equal(t, "TKT-202603-00002", fresh.Number)
	assert.Equal(t, 2, fresh.RequesterSeq)
	assert.Equal(t, "Jane Roe", fresh.DisplayName)
	assert.Equal(t, "QWE456", fresh.Plate)
	assert.Equal(t, "99999999", fresh.NationalID)
	require.Len(t, fresh.Attachments, 1)
	assert.Equal(t, "media-9", fresh.Attachments[0].MediaRef)
	assert.Contains(t, h.notifier.Last().Text, fresh.Number)

	old, err := h.tickets.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, old.IsClosed())
	assert.Nil(t, old.ClosedBy)
	assert.Empty(t, old.Attachments)
	require.Len(t, old.Notes, 1)
	assert.Contains(t, old.Notes[0].Text, "new intake cycle")
	for _, msg := range h.notifier.Sent() {
		assert.NotContains(t, msg.Text, "has been closed")
	}
}

func TestBlockedConversationGetsNoReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)

	h.send(t, h.text("+400", "hello"))
	_, err := h.conversations.SetStatus(ctx, admin, "+400", domain.ConversationBlocked)
	require.NoError(t, err)

	h.send(t, h.text("+400", "anyone there?"))
	assert.Len(t, h.notifier.Sent(), 1)

	conv := h.conversation(t, "+400")
	assert.Equal(t, "anyone there?", conv.LastMessage)
	assert.Equal(t, domain.StepAwaitingName, conv.Step)
}

func TestNotifierFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.notifier.fail = true

	assert.Equal(t, OutcomeProcessed, h.send(t, h.text("+500", "hello")))

	conv := h.conversation(t, "+500")
	last := conv.Messages[len(conv.Messages)-1]
	assert.Equal(t, domain.DirectionOutbound, last.Direction)
	assert.Equal(t, domain.DeliveryFailed, last.Status)
	assert.Equal(t, int64(1), h.metrics.Snapshot().DomainCounter[observability.CounterNotifyFailures])
}

func TestDeliveryStatusUpdatesLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send(t, h.text("+600", "hello"))
	require.NoError(t, h.inbound.HandleStatus(ctx, "+600", "wamid.out.1", domain.DeliveryRead))
	require.NoError(t, h.inbound.HandleStatus(ctx, "+999", "wamid.out.9", domain.DeliveryRead))

	conv := h.conversation(t, "+600")
	var found bool
	for _, entry := range conv.Messages {
		if entry.ExternalID == "wamid.out.1" {
			found = true
			assert.Equal(t, domain.DeliveryRead, entry.Status)
		}
	}
	assert.True(t, found)
}

func TestConcurrentInboundForOneIdentityIsSerialized(t *testing.T) {
	h := newHarness(t)
	const n = 20
	evs := make([]domain.InboundEvent, n)
	for i := range evs {
		evs[i] = h.text("+700", "x")
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, ev := range evs {
		wg.Add(1)
		go func(ev domain.InboundEvent) {
			defer wg.Done()
			if _, err := h.inbound.Handle(context.Background(), ev); err != nil {
				errs <- err
			}
		}(ev)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv := h.conversation(t, "+700")
	inbound := 0
	for _, entry := range conv.Messages {
		if entry.Direction == domain.DirectionInbound {
			inbound++
		}
	}
	assert.Equal(t, n, inbound)
	assert.Equal(t, domain.StepAwaitingName, conv.Step)
	assert.Equal(t, n, conv.UnreadCount)
}
