// Package memstore is an in-memory ticket store for tests. Transactions are
// serialized and run against a copy of the state that is swapped in on
// success, so a failing callback leaves nothing behind.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// ErrDuplicate mimics a unique key violation.
var ErrDuplicate = errors.New("memstore: duplicate key")

type State struct {
	Events          map[uint]models.Event
	TicketTypes     map[uint]models.TicketType
	Orders          map[uint]models.Order
	OrderItems      map[uint]models.OrderItem
	Tickets         map[uint]models.Ticket
	Reservations    map[uint]models.Reservation
	ProcessedEvents map[uint]models.ProcessedEvent
	Notifications   map[uint]models.Notification
	ScanLogs        map[uint]models.ScanLog

	seq uint
}

func newState() *State {
	return &State{
		Events:          map[uint]models.Event{},
		TicketTypes:     map[uint]models.TicketType{},
		Orders:          map[uint]models.Order{},
		OrderItems:      map[uint]models.OrderItem{},
		Tickets:         map[uint]models.Ticket{},
		Reservations:    map[uint]models.Reservation{},
		ProcessedEvents: map[uint]models.ProcessedEvent{},
		Notifications:   map[uint]models.Notification{},
		ScanLogs:        map[uint]models.ScanLog{},
	}
}

func cloneMap[V any](in map[uint]V) map[uint]V {
	out := make(map[uint]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *State) clone() *State {
	return &State{
		Events:          cloneMap(s.Events),
		TicketTypes:     cloneMap(s.TicketTypes),
		Orders:          cloneMap(s.Orders),
		OrderItems:      cloneMap(s.OrderItems),
		Tickets:         cloneMap(s.Tickets),
		Reservations:    cloneMap(s.Reservations),
		ProcessedEvents: cloneMap(s.ProcessedEvents),
		Notifications:   cloneMap(s.Notifications),
		ScanLogs:        cloneMap(s.ScanLogs),
		seq:             s.seq,
	}
}

func (s *State) nextID() uint {
	s.seq++
	return s.seq
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state *State

	// Fail, when set, is consulted before every Tx operation; a non-nil
	// error aborts the operation and with it the transaction.
	Fail func(op string) error
}

func New() *Store {
	return &Store{state: newState()}
}

// Run executes fn as one serializable transaction.
func (s *Store) Run(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&Tx{state: work, fail: s.Fail}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) AddEvent(e models.Event) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.state.nextID()
	if err := e.BeforeCreate(nil); err != nil {
		panic(err)
	}
	s.state.Events[e.ID] = e
	return e
}

func (s *Store) AddTicketType(tt models.TicketType) models.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt.ID = s.state.nextID()
	if tt.MaxPerOrder == 0 {
		tt.MaxPerOrder = 10
	}
	if tt.Currency == "" {
		tt.Currency = "EUR"
	}
	s.state.TicketTypes[tt.ID] = tt
	return tt
}

// Mutate applies fn to the committed state, for test setup such as moving
// the clock past a reservation.
func (s *Store) Mutate(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

func (s *Store) FindEventByUUID(ctx context.Context, eventUUID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.Events {
		if e.UUID == eventUUID {
			e := e
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) ListTicketTypes(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TicketType
	for _, tt := range s.state.TicketTypes {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountActiveReservations(ctx context.Context, typeIDs []uint, now time.Time) (map[uint]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countActive(s.state, typeIDs, now, 0), nil
}

func (s *Store) PurgeProcessedEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var n int64
	err := s.Run(ctx, func(tx *Tx) error {
		for _, id := range sortedKeys(tx.state.ProcessedEvents) {
			if int(n) >= limit {
				break
			}
			if tx.state.ProcessedEvents[id].CreatedAt.Before(cutoff) {
				delete(tx.state.ProcessedEvents, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func countActive(st *State, typeIDs []uint, now time.Time, excludeOrderID uint) map[uint]int64 {
	want := make(map[uint]bool, len(typeIDs))
	for _, id := range typeIDs {
		want[id] = true
	}
	out := map[uint]int64{}
	for _, r := range st.Reservations {
		if want[r.TicketTypeID] && r.ExpiresAt.After(now) && (excludeOrderID == 0 || r.OrderID != excludeOrderID) {
			out[r.TicketTypeID]++
		}
	}
	return out
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
