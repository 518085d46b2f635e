package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/dedup"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/observability"
	"github.com/spec-kit/intake-desk/internal/repository/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMessage struct {
	Identity string
	Text     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, identity, text string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return "", errors.New("channel unavailable")
	}
	n.sent = append(n.sent, sentMessage{Identity: identity, Text: text})
	return fmt.Sprintf("wamid.out.%d", len(n.sent)), nil
}

func (n *recordingNotifier) Sent() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) Last() sentMessage {
	sent := n.Sent()
	if len(sent) == 0 {
		return sentMessage{}
	}
	return sent[len(sent)-1]
}

type harness struct {
	clock         *fakeClock
	convs         *memory.Conversations
	ticketRepo    *memory.Tickets
	staffRepo     *memory.Staff
	notifier      *recordingNotifier
	metrics       *observability.Metrics
	store         *ConversationStore
	tickets       *TicketService
	queue         *QueueService
	locks         *LockService
	assignments   *AssignmentService
	conversations *ConversationService
	inbound       *InboundService
	seq           int
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{t: baseTime},
		convs:      memory.NewConversations(),
		ticketRepo: memory.NewTickets(),
		staffRepo:  memory.NewStaff(),
		notifier:   &recordingNotifier{},
		metrics:    observability.NewMetrics(),
	}
	logger := zap.NewNop()
	clock := Clock(h.clock.Now)
	dispatcher := events.NewInMemoryDispatcher(logger)

	h.store = NewConversationStore(h.convs)
	messenger := NewMessenger(h.notifier, h.store, h.metrics, logger, clock)
	h.tickets = NewTicketService(TicketDependencies{
		TicketRepo:   h.ticketRepo,
		SequenceRepo: memory.NewSequences(),
		StaffRepo:    h.staffRepo,
		Dispatcher:   dispatcher,
		Metrics:      h.metrics,
		Logger:       logger,
		Clock:        clock,
	})
	h.queue = NewQueueService(QueueDependencies{Store: h.store, TicketRepo: h.ticketRepo, Logger: logger, Clock: clock})
	h.locks = NewLockService(LockDependencies{
		TicketRepo: h.ticketRepo,
		StaffRepo:  h.staffRepo,
		Dispatcher: dispatcher,
		Metrics:    h.metrics,
		Logger:     logger,
		Clock:      clock,
	})
	h.assignments = NewAssignmentService(AssignmentDependencies{
		Locks:      h.locks,
		Store:      h.store,
		TicketRepo: h.ticketRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	h.conversations = NewConversationService(h.store, messenger, logger, clock)
	intake := NewIntakeService(IntakeDependencies{
		Store:      h.store,
		Tickets:    h.tickets,
		Queue:      h.queue,
		StaffRepo:  h.staffRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	h.inbound = NewInboundService(InboundDependencies{
		Guard:         dedup.NewMemoryGuard(time.Hour),
		Intake:        intake,
		Tickets:       h.tickets,
		Conversations: h.conversations,
		Store:         h.store,
		Messenger:     messenger,
		Dispatcher:    dispatcher,
		Metrics:       h.metrics,
		Logger:        logger,
		Clock:         clock,
	})
	NewNotificationService(dispatcher, messenger, logger, 0).RegisterHandlers()
	return h
}

func (h *harness) text(identity, body string) domain.InboundEvent {
	h.seq++
	return domain.InboundEvent{
		Identity:          identity,
		ExternalMessageID: fmt.Sprintf("wamid.in.%d", h.seq),
		Kind:              domain.KindText,
		Text:              body,
		ReceivedAt:        h.clock.Now(),
	}
}

func (h *harness) media(identity, ref, caption string) domain.InboundEvent {
	ev := h.text(identity, "[image]")
	ev.Kind = domain.KindImage
	ev.MediaRef = ref
	ev.Caption = caption
	if caption != "" {
		ev.Text = caption
	}
	return ev
}

func (h *harness) send(t *testing.T, ev domain.InboundEvent) InboundOutcome {
	t.Helper()
	outcome, err := h.inbound.Handle(context.Background(), ev)
	require.NoError(t, err)
	return outcome
}

// completeIntake walks identity from first contact to QUEUED and returns its ticket.
func (h *harness) completeIntake(t *testing.T, identity string) *domain.Ticket {
	t.Helper()
	for _, answer := range []string{"hello", "Maria Lopez", "xyz987", "1234567"} {
		h.send(t, h.text(identity, answer))
	}
	ticket, err := h.tickets.OpenForIdentity(context.Background(), identity)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	return ticket
}

func (h *harness) conversation(t *testing.T, identity string) *domain.Conversation {
	t.Helper()
	conv, err := h.convs.Get(context.Background(), identity)
	require.NoError(t, err)
	return conv
}

func (h *harness) addStaff(t *testing.T, name string, role domain.StaffRole) *domain.StaffMember {
	t.Helper()
	member := &domain.StaffMember{Name: name, Email: name + "@desk.test", Role: role, Active: true}
	require.NoError(t, h.staffRepo.Create(context.Background(), member))
	return member
}
