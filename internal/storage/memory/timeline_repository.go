package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// timelineRepositoryInMemory хранит заметки заказа в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu    sync.RWMutex
	notes map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{notes: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет заметку; пустое время заменяется текущим.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return domain.ErrOrderIDRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	notes := append(r.notes[event.OrderID], event)
	// Заметки с одинаковым временем сохраняют порядок добавления.
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Occurred.Before(notes[j].Occurred)
	})
	r.notes[event.OrderID] = notes
	return nil
}

// List возвращает заметки заказа в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notes := r.notes[orderID]
	result := make([]domain.TimelineEvent, len(notes))
	copy(result, notes)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
