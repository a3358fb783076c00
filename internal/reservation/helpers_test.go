package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/studyroom-reservation/internal/model"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

// spyStore counts calls before delegating to an in-memory store.
type spyStore struct {
	*repository.MemoryConflictStore
	inserts atomic.Int32
}

func (s *spyStore) InsertIfNoConflict(ctx context.Context, c *model.Reservation) (*model.Reservation, error) {
	s.inserts.Add(1)
	return s.MemoryConflictStore.InsertIfNoConflict(ctx, c)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Reservation
	err    error
}

func (p *recordingPublisher) PublishReservationCreated(ctx context.Context, r model.Reservation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, r)
	return p.err
}

type fixture struct {
	rooms *repository.MemoryRoomDirectory
	store *spyStore
	users *repository.MemoryUserStore
	svc   *Service
}

// newFixture creates one room per capacity entry.  Seat ids are
// assigned consecutively across rooms starting at 1.
func newFixture(t *testing.T, capacities ...int) *fixture {
	t.Helper()
	f := &fixture{
		rooms: repository.NewMemoryRoomDirectory(),
		store: &spyStore{MemoryConflictStore: repository.NewMemoryConflictStore()},
		users: repository.NewMemoryUserStore(),
	}
	for i, c := range capacities {
		room, err := model.NewRoom(0, "Room "+string(rune('A'+i)), c, nil)
		require.NoError(t, err)
		_, err = f.rooms.AddRoom(room)
		require.NoError(t, err)
	}
	f.svc = NewService(f.rooms, f.store, f.users, nil, nil)
	return f
}

func (f *fixture) processor(t *testing.T, opts Options, workers int) *Processor {
	t.Helper()
	p := NewProcessor(f.svc, opts)
	require.NoError(t, p.Start(workers))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func wait(t *testing.T, h *Handle) (*model.Reservation, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "handle was never resolved")
	return res, err
}
