package reservation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

const publishTimeout = 5 * time.Second

// Service validates and commits single reservation requests.  It is the
// synchronous path used by deployments that skip the queue and the unit
// of work executed by every Processor worker.
type Service struct {
	rooms  RoomDirectory
	store  ConflictStore
	users  UserResolver
	events EventPublisher
	logger *zap.Logger
}

// NewService wires the collaborators of the reservation core.  rooms,
// store and users must be non-nil; events and logger are optional.
func NewService(rooms RoomDirectory, store ConflictStore, users UserResolver, events EventPublisher, logger *zap.Logger) *Service {
	if rooms == nil || store == nil || users == nil {
		panic("nil collaborator passed to reservation.NewService")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{rooms: rooms, store: store, users: users, events: events, logger: logger}
}

// CreateReservation runs the full admission algorithm for req and
// returns the committed reservation.  Validation failures are returned
// before any store is touched; the conflict store is the only place
// where ErrSeatAlreadyReserved originates.  Errors outside the domain
// taxonomy are wrapped as model.ErrUnexpectedFault and never retried.
func (s *Service) CreateReservation(ctx context.Context, req Request) (*model.Reservation, error) {
	candidate, err := model.NewReservation(req.SeatID, req.RoomID, 0, req.Username, req.StartTime, req.EndTime)
	if err != nil {
		s.logger.Debug("reservation rejected", zap.Stringer("request", req), zap.Error(err))
		return nil, err
	}

	room, err := s.resolveRoom(ctx, req)
	if err != nil {
		return nil, s.fail(req, "resolve room", err)
	}
	// clients that only know the seat id get the room backfilled
	if req.RoomID == 0 {
		req.RoomID = room.ID
	}
	candidate.RoomID = room.ID

	userID, err := s.users.ResolveOrCreateUser(ctx, candidate.Username)
	if err != nil {
		return nil, s.fail(req, "resolve user", err)
	}
	candidate.UserID = userID

	committed, err := s.store.InsertIfNoConflict(ctx, candidate)
	if err != nil {
		return nil, s.fail(req, "insert reservation", err)
	}
	if committed.RoomID == 0 {
		committed.RoomID = room.ID
	}
	if committed.Username == "" {
		committed.Username = candidate.Username
	}
	s.logger.Info("reservation committed",
		zap.Uint64("reservation_id", committed.ID),
		zap.Uint64("room_id", committed.RoomID),
		zap.Uint64("seat_id", committed.SeatID),
		zap.String("username", committed.Username),
		zap.String("request_id", req.ID.String()),
	)
	s.publish(*committed)
	return committed, nil
}

// resolveRoom finds the room for the request.  An explicit room id must
// own the seat; otherwise the owner is looked up by seat id.
func (s *Service) resolveRoom(ctx context.Context, req Request) (*model.Room, error) {
	if req.RoomID == 0 {
		return s.rooms.FindRoomOwningSeat(ctx, req.SeatID)
	}
	room, err := s.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasSeat(req.SeatID) {
		return nil, model.ErrSeatNotFound
	}
	return room, nil
}

// fail classifies err, logs it at a level matching its kind and returns
// the classified error.
func (s *Service) fail(req Request, step string, err error) error {
	err = model.Fault(err)
	if errors.Is(err, model.ErrUnexpectedFault) {
		s.logger.Error("reservation failed",
			zap.String("step", step),
			zap.Stringer("request", req),
			zap.Error(err),
		)
		return err
	}
	s.logger.Debug("reservation rejected",
		zap.String("step", step),
		zap.Stringer("request", req),
		zap.String("kind", model.KindOf(err)),
	)
	return err
}

func (s *Service) publish(r model.Reservation) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.events.PublishReservationCreated(ctx, r); err != nil {
		s.logger.Warn("publish reservation event failed", zap.Uint64("reservation_id", r.ID), zap.Error(err))
	}
}
