package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
)

// Tickets is a mutex guarded TicketRepository.
type Tickets struct {
	mu    sync.RWMutex
	items map[string]*domain.Ticket
}

// NewTickets builds an empty store.
func NewTickets() *Tickets {
	return &Tickets{items: make(map[string]*domain.Ticket)}
}

var _ repository.TicketRepository = (*Tickets)(nil)

func (s *Tickets) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	count := 0
	for _, existing := range s.items {
		if existing.ID == ticket.ID || existing.Number == ticket.Number {
			return repository.ErrDuplicate
		}
		if existing.Identity == ticket.Identity {
			count++
		}
	}
	ticket.RequesterSeq = count + 1
	ticket.Version = 1
	s.items[ticket.ID] = ticket.Clone()
	return nil
}

func (s *Tickets) Save(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != ticket.Version {
		return repository.ErrStaleWrite
	}
	next := ticket.Clone()
	// Notes and attachments only change through the append operations.
	next.Notes = current.Notes
	next.Attachments = current.Attachments
	next.Version++
	s.items[ticket.ID] = next
	ticket.Version = next.Version
	return nil
}

func (s *Tickets) Get(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ticket.Clone(), nil
}

func (s *Tickets) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ticket := range s.items {
		if ticket.Number == number {
			return ticket.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Tickets) GetOpenForIdentity(_ context.Context, identity string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Ticket
	for _, ticket := range s.items {
		if ticket.Identity != identity || ticket.IsClosed() {
			continue
		}
		if latest == nil || ticket.CreatedAt.After(latest.CreatedAt) {
			latest = ticket
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *Tickets) CountForIdentity(_ context.Context, identity string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, ticket := range s.items {
		if ticket.Identity == identity {
			count++
		}
	}
	return count, nil
}

func (s *Tickets) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	s.mu.RLock()
	var result []domain.Ticket
	for _, ticket := range s.items {
		if matchesTicket(ticket, filter) {
			result = append(result, *ticket.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset, 20), len(result), nil
}

func matchesTicket(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.Identity != nil && ticket.Identity != *filter.Identity {
		return false
	}
	if filter.AssignedAgentID != nil && !ticket.AssignedTo(*filter.AssignedAgentID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.Priorities) > 0 {
		found := false
		for _, priority := range filter.Priorities {
			if ticket.Priority == priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Number), term) &&
			!strings.Contains(strings.ToLower(ticket.DisplayName), term) &&
			!strings.Contains(strings.ToLower(ticket.Plate), term) &&
			!strings.Contains(ticket.Identity, term) {
			return false
		}
	}
	return true
}

func (s *Tickets) AcquireLock(_ context.Context, id, agentID string, now time.Time, ttl time.Duration) (*domain.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.items[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if ticket.IsClosed() || !ticket.LockStateFor(agentID, now, ttl).Acquirable() {
		return ticket.Clone(), false, nil
	}
	ticket.ApplyLock(agentID, now)
	ticket.Version++
	return ticket.Clone(), true, nil
}

func (s *Tickets) ReleaseLock(_ context.Context, id, holderID string, now time.Time) (*domain.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.items[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if ticket.LockedBy == nil || *ticket.LockedBy != holderID {
		return ticket.Clone(), false, nil
	}
	ticket.ClearLock(now)
	ticket.Version++
	return ticket.Clone(), true, nil
}

func (s *Tickets) AppendNote(_ context.Context, id string, note domain.TicketNote) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket.Notes = append(ticket.Notes, note)
	ticket.UpdatedAt = note.CreatedAt
	return ticket.Clone(), nil
}

func (s *Tickets) AppendAttachment(_ context.Context, id string, attachment domain.TicketAttachment) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket.Attachments = append(ticket.Attachments, attachment)
	ticket.UpdatedAt = attachment.CreatedAt
	return ticket.Clone(), nil
}

func (s *Tickets) Stats(_ context.Context, agentID string) (repository.TicketStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := repository.TicketStats{
		ByStatus:       make(map[domain.TicketStatus]int),
		OpenByPriority: make(map[domain.TicketPriority]int),
	}
	resolved, minutes := 0, 0
	for _, ticket := range s.items {
		stats.ByStatus[ticket.Status]++
		if !ticket.IsClosed() {
			stats.OpenByPriority[ticket.Priority]++
			if agentID != "" && ticket.AssignedTo(agentID) {
				stats.OpenForAgent++
			}
		}
		if ticket.ResolutionMinutes != nil {
			resolved++
			minutes += *ticket.ResolutionMinutes
		}
	}
	if resolved > 0 {
		stats.AverageResolutionMinutes = float64(minutes) / float64(resolved)
	}
	return stats, nil
}

// Sequences is an in-memory SequenceRepository.
type Sequences struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewSequences builds an empty counter set.
func NewSequences() *Sequences {
	return &Sequences{values: make(map[string]int64)}
}

var _ repository.SequenceRepository = (*Sequences)(nil)

func (s *Sequences) NextTicketSequence(_ context.Context, yearMonth string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[yearMonth]++
	return s.values[yearMonth], nil
}
