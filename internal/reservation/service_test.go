package reservation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/studyroom-reservation/internal/model"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
)

type failingUsers struct{ err error }

func (f failingUsers) ResolveOrCreateUser(ctx context.Context, username string) (uint64, error) {
	return 0, f.err
}

func TestCreateReservationCommitsAndBackfillsRoom(t *testing.T) {
	f := newFixture(t, 3)
	res, err := f.svc.CreateReservation(context.Background(), Request{
		SeatID: 2, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.ID)
	assert.Equal(t, uint64(1), res.RoomID)
	assert.Equal(t, uint64(2), res.SeatID)
	assert.Equal(t, "alice", res.Username)
	assert.False(t, res.IsConfirmed)
	assert.NotZero(t, res.UserID)

	stored, err := f.store.ReservationsForSeat(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.ID, stored[0].ID)
}

func TestCreateReservationReusesUser(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, err := f.svc.CreateReservation(ctx, Request{SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)
	b, err := f.svc.CreateReservation(ctx, Request{SeatID: 2, Username: "  alice ", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)
	assert.Equal(t, a.UserID, b.UserID)
}

func TestCreateReservationValidationNeverReachesStore(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"empty interval", Request{SeatID: 1, Username: "alice", StartTime: at(10, 0), EndTime: at(10, 0)}, model.ErrInvalidInterval},
		{"reversed interval", Request{SeatID: 1, Username: "alice", StartTime: at(11, 0), EndTime: at(10, 0)}, model.ErrInvalidInterval},
		{"blank username", Request{SeatID: 1, Username: "   ", StartTime: at(9, 0), EndTime: at(10, 0)}, model.ErrInvalidUsername},
		// interval checks run before the room lookup
		{"unknown seat with empty interval", Request{SeatID: 99, Username: "alice", StartTime: at(10, 0), EndTime: at(10, 0)}, model.ErrInvalidInterval},
		{"unknown seat", Request{SeatID: 99, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)}, model.ErrRoomNotFound},
		{"unknown room", Request{RoomID: 7, SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)}, model.ErrRoomNotFound},
		{"seat of another room", Request{RoomID: 1, SeatID: 3, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)}, model.ErrSeatNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 2, 2)
			_, err := f.svc.CreateReservation(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.store.inserts.Load())
			_, known := f.users.GetByUsername(context.Background(), "alice")
			assert.False(t, known, "no user should be created for a rejected request")
		})
	}
}

func TestCreateReservationConflict(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.CreateReservation(ctx, Request{SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)

	_, err = f.svc.CreateReservation(ctx, Request{SeatID: 1, Username: "bob", StartTime: at(9, 30), EndTime: at(10, 30)})
	assert.ErrorIs(t, err, model.ErrSeatAlreadyReserved)
	assert.Equal(t, model.KindSeatAlreadyReserved, model.KindOf(err))

	// touching intervals do not overlap
	_, err = f.svc.CreateReservation(ctx, Request{SeatID: 1, Username: "bob", StartTime: at(10, 0), EndTime: at(11, 0)})
	assert.NoError(t, err)
}

func TestCreateReservationWrapsInfrastructureErrors(t *testing.T) {
	f := newFixture(t, 1)
	svc := NewService(f.rooms, f.store, failingUsers{err: errors.New("connection refused")}, nil, nil)

	_, err := svc.CreateReservation(context.Background(), Request{SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)})
	assert.ErrorIs(t, err, model.ErrUnexpectedFault)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, f.store.inserts.Load())
}

func TestCreateReservationPublishesEvent(t *testing.T) {
	f := newFixture(t, 1)
	pub := &recordingPublisher{}
	svc := NewService(f.rooms, f.store, f.users, pub, nil)

	res, err := svc.CreateReservation(context.Background(), Request{SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, res.ID, pub.events[0].ID)

	_, err = svc.CreateReservation(context.Background(), Request{SeatID: 1, Username: "bob", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.Error(t, err)
	assert.Len(t, pub.events, 1, "failed requests publish nothing")
}

func TestCreateReservationIgnoresPublishFailure(t *testing.T) {
	f := newFixture(t, 1)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(f.rooms, f.store, f.users, pub, nil)

	_, err := svc.CreateReservation(context.Background(), Request{SeatID: 1, Username: "alice", StartTime: at(9, 0), EndTime: at(10, 0)})
	assert.NoError(t, err)
}

func TestNewServicePanicsOnMissingCollaborator(t *testing.T) {
	assert.Panics(t, func() {
		NewService(nil, repository.NewMemoryConflictStore(), repository.NewMemoryUserStore(), nil, nil)
	})
}
