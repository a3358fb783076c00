package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// ReportRepo computes read-only statistics.  Nothing here takes locks;
// figures may lag concurrent writes.
type ReportRepo struct {
	db *sql.DB
}

// NewReportRepo returns a ReportRepo bound to db.
func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// Summary returns overall totals followed by per-room, per-user and
// per-equipment figures.
func (r *ReportRepo) Summary(ctx context.Context) (*model.Summary, error) {
	var s model.Summary
	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM reservations),
		(SELECT COUNT(DISTINCT user_id) FROM reservations),
		(SELECT COUNT(*) FROM rooms),
		(SELECT COUNT(*) FROM seats),
		(SELECT COUNT(*) FROM reservations WHERE is_confirmed = 1),
		(SELECT COUNT(*) FROM reservations WHERE is_confirmed = 0)`,
	).Scan(&s.TotalReservations, &s.TotalUsers, &s.TotalRooms, &s.TotalSeats,
		&s.ConfirmedReservations, &s.PendingReservations)
	if err != nil {
		return nil, err
	}
	if s.Rooms, err = r.roomStats(ctx); err != nil {
		return nil, err
	}
	if s.Users, err = r.userStats(ctx); err != nil {
		return nil, err
	}
	if s.Equipment, err = r.equipmentStats(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ReportRepo) roomStats(ctx context.Context) ([]model.RoomStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rm.id, rm.name, rm.capacity, rm.floor,
		       COUNT(DISTINCT s.id), COUNT(res.id), COALESCE(SUM(res.is_confirmed), 0)
		FROM rooms rm
		LEFT JOIN seats s ON s.room_id = rm.id
		LEFT JOIN reservations res ON res.seat_id = s.id
		GROUP BY rm.id, rm.name, rm.capacity, rm.floor
		ORDER BY rm.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RoomStat{}
	for rows.Next() {
		var (
			st    model.RoomStat
			floor sql.NullInt64
		)
		if err := rows.Scan(&st.RoomID, &st.RoomName, &st.Capacity, &floor,
			&st.SeatCount, &st.ReservationCount, &st.ConfirmedCount); err != nil {
			return nil, err
		}
		if floor.Valid {
			f := int(floor.Int64)
			st.Floor = &f
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *ReportRepo) userStats(ctx context.Context) ([]model.UserStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.role, COUNT(res.id), COALESCE(SUM(res.is_confirmed), 0) AS confirmed
		FROM users u
		LEFT JOIN reservations res ON res.user_id = u.id
		GROUP BY u.id, u.username, u.role
		ORDER BY COUNT(res.id) DESC, u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.UserStat{}
	for rows.Next() {
		var (
			st   model.UserStat
			role string
		)
		if err := rows.Scan(&st.UserID, &st.Username, &role, &st.ReservationCount, &st.ConfirmedCount); err != nil {
			return nil, err
		}
		st.Role = model.ParseRole(role)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *ReportRepo) equipmentStats(ctx context.Context) ([]model.EquipmentStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, COUNT(DISTINCT re.room_id)
		FROM equipment e
		LEFT JOIN room_equipment re ON re.equipment_id = e.id
		GROUP BY e.id, e.name
		ORDER BY e.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.EquipmentStat{}
	for rows.Next() {
		var st model.EquipmentStat
		if err := rows.Scan(&st.EquipmentID, &st.EquipmentName, &st.RoomCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
