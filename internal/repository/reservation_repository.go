package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// Reservation log actions written alongside every change.
const (
	ActionCreated     = "CREATED"
	ActionConfirmed   = "CONFIRMED"
	ActionRescheduled = "RESCHEDULED"
	ActionDeleted     = "DELETED"
)

// ReservationRepo is the MySQL conflict store.  Every write runs in one
// transaction that first locks the seat row with SELECT ... FOR UPDATE,
// so concurrent writers for the same seat serialize on that lock while
// writers for other seats proceed in parallel.  All timestamps are
// stored in UTC with second precision.
type ReservationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const reservationColumns = `r.id, r.seat_id, r.room_id, r.user_id, u.username, r.start_time, r.end_time, r.is_confirmed, r.created_at`

const reservationFrom = ` FROM reservations r JOIN users u ON u.id = r.user_id`

// withSeatLock runs fn inside a transaction holding the row lock of
// seatID.  fn receives the id of the room owning the seat.  The
// transaction commits only when fn returns nil.
func (r *ReservationRepo) withSeatLock(ctx context.Context, seatID uint64, fn func(tx *sql.Tx, roomID uint64) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var roomID uint64
	if err := tx.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ? FOR UPDATE`, seatID).Scan(&roomID); err != nil {
		return notFound(err, model.ErrSeatNotFound)
	}
	if err := fn(tx, roomID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// overlapping counts reservations of seatID intersecting [start, end),
// skipping the reservation with id exclude (zero skips nothing).
func overlapping(ctx context.Context, tx *sql.Tx, seatID uint64, start, end time.Time, exclude uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations
		 WHERE seat_id = ? AND id <> ? AND start_time < ? AND end_time > ?`,
		seatID, exclude, end, start,
	).Scan(&n)
	return n, err
}

func writeLog(ctx context.Context, tx *sql.Tx, reservationID uint64, action string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservation_logs (reservation_id, action, created_at) VALUES (?, ?, ?)`,
		reservationID, action, at)
	return err
}

// InsertIfNoConflict commits candidate unless a reservation of the same
// seat overlaps it.  Confirmation status does not matter.  A seat that
// does not exist, or that belongs to a room other than candidate.RoomID,
// yields model.ErrSeatNotFound.
func (r *ReservationRepo) InsertIfNoConflict(ctx context.Context, candidate *model.Reservation) (*model.Reservation, error) {
	res := *candidate
	res.StartTime = model.TruncateSecond(res.StartTime)
	res.EndTime = model.TruncateSecond(res.EndTime)
	if !res.StartTime.Before(res.EndTime) {
		return nil, model.ErrInvalidInterval
	}
	err := r.withSeatLock(ctx, res.SeatID, func(tx *sql.Tx, roomID uint64) error {
		if res.RoomID != 0 && res.RoomID != roomID {
			return model.ErrSeatNotFound
		}
		res.RoomID = roomID
		n, err := overlapping(ctx, tx, res.SeatID, res.StartTime, res.EndTime, 0)
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrSeatAlreadyReserved
		}
		res.CreatedAt = model.TruncateSecond(r.now())
		out, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (seat_id, room_id, user_id, start_time, end_time, is_confirmed, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			res.SeatID, res.RoomID, res.UserID, res.StartTime, res.EndTime, res.IsConfirmed, res.CreatedAt)
		if err != nil {
			return err
		}
		id, err := out.LastInsertId()
		if err != nil {
			return err
		}
		res.ID = uint64(id)
		return writeLog(ctx, tx, res.ID, ActionCreated, res.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.SeatID, &res.RoomID, &res.UserID, &res.Username,
			&res.StartTime, &res.EndTime, &res.IsConfirmed, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanDetails(rows *sql.Rows) ([]model.ReservationDetail, error) {
	defer rows.Close()
	out := []model.ReservationDetail{}
	for rows.Next() {
		var (
			d    model.ReservationDetail
			role string
		)
		if err := rows.Scan(&d.ID, &d.SeatID, &d.RoomID, &d.UserID, &d.Username,
			&d.StartTime, &d.EndTime, &d.IsConfirmed, &d.CreatedAt, &role, &d.RoomName); err != nil {
			return nil, err
		}
		d.UserRole = model.ParseRole(role)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReservationsForSeat returns the reservations of seatID ordered by start.
func (r *ReservationRepo) ReservationsForSeat(ctx context.Context, seatID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationFrom+` WHERE r.seat_id = ? ORDER BY r.start_time, r.id`, seatID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListForRoom returns the reservations of every seat in roomID ordered
// by start.
func (r *ReservationRepo) ListForRoom(ctx context.Context, roomID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationFrom+` WHERE r.room_id = ? ORDER BY r.start_time, r.id`, roomID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

const detailQuery = `SELECT ` + reservationColumns + `, u.role, rm.name` + reservationFrom +
	` JOIN rooms rm ON rm.id = r.room_id`

// ListAll returns every reservation with user and room details, newest
// start first.
func (r *ReservationRepo) ListAll(ctx context.Context) ([]model.ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx, detailQuery+` ORDER BY r.start_time DESC, r.id DESC`)
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// ListInRange returns reservations overlapping [start, end) ordered by
// start.
func (r *ReservationRepo) ListInRange(ctx context.Context, start, end time.Time) ([]model.ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		detailQuery+` WHERE r.start_time < ? AND r.end_time > ? ORDER BY r.start_time, r.id`,
		model.TruncateSecond(end), model.TruncateSecond(start))
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// seatOf returns the seat of reservation id.
func (r *ReservationRepo) seatOf(ctx context.Context, id uint64) (uint64, error) {
	var seatID uint64
	if err := r.db.QueryRowContext(ctx, `SELECT seat_id FROM reservations WHERE id = ?`, id).Scan(&seatID); err != nil {
		return 0, notFound(err, model.ErrReservationNotFound)
	}
	return seatID, nil
}

// Confirm marks reservation id as confirmed.
func (r *ReservationRepo) Confirm(ctx context.Context, id uint64) error {
	seatID, err := r.seatOf(ctx, id)
	if err != nil {
		return err
	}
	return r.withSeatLock(ctx, seatID, func(tx *sql.Tx, _ uint64) error {
		res, err := tx.ExecContext(ctx, `UPDATE reservations SET is_confirmed = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, id, ActionConfirmed, r.now())
	})
}

// Delete removes reservation id, freeing its interval.  The log row is
// written before the delete so the audit trail survives.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	seatID, err := r.seatOf(ctx, id)
	if err != nil {
		return err
	}
	return r.withSeatLock(ctx, seatID, func(tx *sql.Tx, _ uint64) error {
		if err := writeLog(ctx, tx, id, ActionDeleted, r.now()); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// Reschedule moves reservation id to [start, end) on the same seat.  The
// reservation itself is ignored by the overlap check.
func (r *ReservationRepo) Reschedule(ctx context.Context, id uint64, start, end time.Time) (*model.Reservation, error) {
	start, end = model.TruncateSecond(start), model.TruncateSecond(end)
	if !start.Before(end) {
		return nil, model.ErrInvalidInterval
	}
	seatID, err := r.seatOf(ctx, id)
	if err != nil {
		return nil, err
	}
	err = r.withSeatLock(ctx, seatID, func(tx *sql.Tx, _ uint64) error {
		n, err := overlapping(ctx, tx, seatID, start, end, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrSeatAlreadyReserved
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET start_time = ?, end_time = ? WHERE id = ?`, start, end, id)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, id, ActionRescheduled, r.now())
	})
	if err != nil {
		return nil, err
	}
	var out model.Reservation
	err = r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+reservationFrom+` WHERE r.id = ?`, id).Scan(
		&out.ID, &out.SeatID, &out.RoomID, &out.UserID, &out.Username,
		&out.StartTime, &out.EndTime, &out.IsConfirmed, &out.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrReservationNotFound)
	}
	return &out, nil
}

// requireRow maps an UPDATE or DELETE that matched nothing to
// model.ErrReservationNotFound.  database.Open sets clientFoundRows, so
// an UPDATE that leaves the row unchanged still reports it.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrReservationNotFound
	}
	return nil
}
