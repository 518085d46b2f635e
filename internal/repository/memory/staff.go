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

// Staff is a mutex guarded StaffRepository.
type Staff struct {
	mu    sync.RWMutex
	items map[string]domain.StaffMember
}

// NewStaff builds an empty store.
func NewStaff() *Staff {
	return &Staff{items: make(map[string]domain.StaffMember)}
}

var _ repository.StaffRepository = (*Staff)(nil)

func (s *Staff) Create(_ context.Context, staff *domain.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staff.Email = strings.ToLower(staff.Email)
	for _, existing := range s.items {
		if existing.Email == staff.Email {
			return repository.ErrDuplicate
		}
	}
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	staff.CreatedAt = now
	staff.UpdatedAt = now
	s.items[staff.ID] = *staff
	return nil
}

func (s *Staff) Update(_ context.Context, staff *domain.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[staff.ID]; !ok {
		return repository.ErrNotFound
	}
	staff.Email = strings.ToLower(staff.Email)
	staff.UpdatedAt = time.Now().UTC()
	s.items[staff.ID] = *staff
	return nil
}

func (s *Staff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	staff, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &staff, nil
}

func (s *Staff) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, staff := range s.items {
		if staff.Email == email {
			found := staff
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Staff) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	s.mu.RLock()
	var result []domain.StaffMember
	for _, staff := range s.items {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		result = append(result, staff)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset, 50), nil
}

func (s *Staff) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}
