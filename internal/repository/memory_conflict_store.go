package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// seatBucket holds the committed reservations of one seat.  Its mutex is
// held across the overlap check and the append, which is what makes
// InsertIfNoConflict atomic per seat.
type seatBucket struct {
	mu   sync.Mutex
	rows []model.Reservation
}

// MemoryConflictStore is an in-process conflict store.  Writers for
// different seats never contend on the same lock.
type MemoryConflictStore struct {
	mu      sync.Mutex
	buckets map[uint64]*seatBucket
	seatOf  map[uint64]uint64 // reservation id -> seat id

	nextID atomic.Uint64
	now    func() time.Time
}

// NewMemoryConflictStore returns an empty store.  Ids start at 1.
func NewMemoryConflictStore() *MemoryConflictStore {
	return &MemoryConflictStore{
		buckets: make(map[uint64]*seatBucket),
		seatOf:  make(map[uint64]uint64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryConflictStore) bucket(seatID uint64) *seatBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[seatID]
	if !ok {
		b = &seatBucket{}
		s.buckets[seatID] = b
	}
	return b
}

func (s *MemoryConflictStore) lookup(id uint64) (*seatBucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seatID, ok := s.seatOf[id]
	if !ok {
		return nil, false
	}
	return s.buckets[seatID], true
}

// InsertIfNoConflict commits candidate unless an overlapping reservation
// exists for the same seat.  Confirmation status does not matter.
func (s *MemoryConflictStore) InsertIfNoConflict(ctx context.Context, candidate *model.Reservation) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := *candidate
	r.StartTime = model.TruncateSecond(r.StartTime)
	r.EndTime = model.TruncateSecond(r.EndTime)
	if !r.StartTime.Before(r.EndTime) {
		return nil, model.ErrInvalidInterval
	}

	b := s.bucket(r.SeatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.rows {
		if existing.Overlaps(r) {
			return nil, model.ErrSeatAlreadyReserved
		}
	}
	r.ID = s.nextID.Add(1)
	r.CreatedAt = s.now()
	b.rows = append(b.rows, r)

	s.mu.Lock()
	s.seatOf[r.ID] = r.SeatID
	s.mu.Unlock()

	out := r
	return &out, nil
}

// ReservationsForSeat returns the seat's reservations ordered by start.
func (s *MemoryConflictStore) ReservationsForSeat(ctx context.Context, seatID uint64) ([]model.Reservation, error) {
	s.mu.Lock()
	b, ok := s.buckets[seatID]
	s.mu.Unlock()
	if !ok {
		return []model.Reservation{}, nil
	}
	b.mu.Lock()
	out := make([]model.Reservation, len(b.rows))
	copy(out, b.rows)
	b.mu.Unlock()
	sortByStart(out)
	return out, nil
}

// ListForRoom returns every reservation whose seat belongs to roomID.
func (s *MemoryConflictStore) ListForRoom(ctx context.Context, roomID uint64) ([]model.Reservation, error) {
	return s.filter(func(r model.Reservation) bool { return r.RoomID == roomID }), nil
}

// ListAll returns every reservation, newest start first.
func (s *MemoryConflictStore) ListAll(ctx context.Context) ([]model.ReservationDetail, error) {
	rows := s.filter(func(model.Reservation) bool { return true })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime.After(rows[j].StartTime) })
	return details(rows), nil
}

// ListInRange returns reservations overlapping [start, end).
func (s *MemoryConflictStore) ListInRange(ctx context.Context, start, end time.Time) ([]model.ReservationDetail, error) {
	start, end = model.TruncateSecond(start), model.TruncateSecond(end)
	rows := s.filter(func(r model.Reservation) bool {
		return model.Overlaps(r.StartTime, r.EndTime, start, end)
	})
	return details(rows), nil
}

// Confirm marks a reservation as confirmed.
func (s *MemoryConflictStore) Confirm(ctx context.Context, id uint64) error {
	return s.mutate(id, func(b *seatBucket, i int) error {
		b.rows[i].IsConfirmed = true
		return nil
	})
}

// Delete removes a reservation, freeing its interval.
func (s *MemoryConflictStore) Delete(ctx context.Context, id uint64) error {
	err := s.mutate(id, func(b *seatBucket, i int) error {
		b.rows = append(b.rows[:i], b.rows[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.seatOf, id)
	s.mu.Unlock()
	return nil
}

// Reschedule moves a reservation to a new interval on the same seat,
// ignoring the reservation itself in the overlap check.
func (s *MemoryConflictStore) Reschedule(ctx context.Context, id uint64, start, end time.Time) (*model.Reservation, error) {
	start, end = model.TruncateSecond(start), model.TruncateSecond(end)
	if !start.Before(end) {
		return nil, model.ErrInvalidInterval
	}
	var out model.Reservation
	err := s.mutate(id, func(b *seatBucket, i int) error {
		for j, other := range b.rows {
			if j != i && model.Overlaps(other.StartTime, other.EndTime, start, end) {
				return model.ErrSeatAlreadyReserved
			}
		}
		b.rows[i].StartTime = start
		b.rows[i].EndTime = end
		out = b.rows[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// mutate runs fn with the bucket lock of reservation id held.
func (s *MemoryConflictStore) mutate(id uint64, fn func(b *seatBucket, i int) error) error {
	b, ok := s.lookup(id)
	if !ok {
		return model.ErrReservationNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.rows {
		if b.rows[i].ID == id {
			return fn(b, i)
		}
	}
	return model.ErrReservationNotFound
}

func (s *MemoryConflictStore) filter(keep func(model.Reservation) bool) []model.Reservation {
	s.mu.Lock()
	buckets := make([]*seatBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		buckets = append(buckets, b)
	}
	s.mu.Unlock()

	out := []model.Reservation{}
	for _, b := range buckets {
		b.mu.Lock()
		for _, r := range b.rows {
			if keep(r) {
				out = append(out, r)
			}
		}
		b.mu.Unlock()
	}
	sortByStart(out)
	return out
}

func sortByStart(rows []model.Reservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
}

func details(rows []model.Reservation) []model.ReservationDetail {
	out := make([]model.ReservationDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ReservationDetail{Reservation: r})
	}
	return out
}
