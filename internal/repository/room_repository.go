package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// RoomRepo reads and writes rooms, their seats and their equipment links.
// It implements reservation.RoomDirectory for the MySQL deployment.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a RoomRepo bound to db.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateRoom inserts a room and exactly capacity seats in one
// transaction and returns the stored room with its seat ids.
func (r *RoomRepo) CreateRoom(ctx context.Context, name string, capacity int, floor *int) (*model.Room, error) {
	room, err := model.NewRoom(0, name, capacity, floor)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := insertRoomTx(ctx, tx, room); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return room, nil
}

// insertRoomTx stores room and its seats, replacing the room-local seat
// numbering with the generated seat ids.
func insertRoomTx(ctx context.Context, tx *sql.Tx, room *model.Room) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, capacity, floor) VALUES (?, ?, ?)`,
		room.Name, room.Capacity, room.Floor)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = uint64(id)

	query := `INSERT INTO seats (room_id) VALUES `
	args := make([]any, 0, len(room.Seats))
	for i := range room.Seats {
		if i > 0 {
			query += ","
		}
		query += "(?)"
		args = append(args, room.ID)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	seats, err := seatsOfRoom(ctx, tx, room.ID)
	if err != nil {
		return err
	}
	room.Seats = seats
	return nil
}

func seatsOfRoom(ctx context.Context, q queryer, roomID uint64) ([]model.Seat, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM seats WHERE room_id = ? ORDER BY id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s := model.Seat{RoomID: roomID}
		if err := rows.Scan(&s.ID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRoom loads one room with its seats and equipment.  A missing room
// yields model.ErrRoomNotFound.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	var (
		room  model.Room
		floor sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, capacity, floor FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.Name, &room.Capacity, &floor)
	if err != nil {
		return nil, notFound(err, model.ErrRoomNotFound)
	}
	if floor.Valid {
		f := int(floor.Int64)
		room.Floor = &f
	}
	if room.Seats, err = seatsOfRoom(ctx, r.db, room.ID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.name FROM equipment e
		 JOIN room_equipment re ON re.equipment_id = e.id
		 WHERE re.room_id = ? ORDER BY e.name`, room.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e model.Equipment
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		room.Equipment = append(room.Equipment, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindRoomOwningSeat loads the room that owns seatID.  An unknown seat
// yields model.ErrRoomNotFound.
func (r *RoomRepo) FindRoomOwningSeat(ctx context.Context, seatID uint64) (*model.Room, error) {
	var roomID uint64
	err := r.db.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ?`, seatID).Scan(&roomID)
	if err != nil {
		return nil, notFound(err, model.ErrRoomNotFound)
	}
	return r.GetRoom(ctx, roomID)
}

// ListRooms returns every room ordered by id, with seats and equipment.
// Three queries are issued regardless of the number of rooms.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, capacity, floor FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rooms []model.Room
	index := make(map[uint64]int)
	for rows.Next() {
		var (
			room  model.Room
			floor sql.NullInt64
		)
		if err := rows.Scan(&room.ID, &room.Name, &room.Capacity, &floor); err != nil {
			return nil, err
		}
		if floor.Valid {
			f := int(floor.Int64)
			room.Floor = &f
		}
		index[room.ID] = len(rooms)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seatRows, err := r.db.QueryContext(ctx, `SELECT id, room_id FROM seats ORDER BY room_id, id`)
	if err != nil {
		return nil, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var s model.Seat
		if err := seatRows.Scan(&s.ID, &s.RoomID); err != nil {
			return nil, err
		}
		if i, ok := index[s.RoomID]; ok {
			rooms[i].Seats = append(rooms[i].Seats, s)
		}
	}
	if err := seatRows.Err(); err != nil {
		return nil, err
	}

	eqRows, err := r.db.QueryContext(ctx,
		`SELECT re.room_id, e.id, e.name FROM room_equipment re
		 JOIN equipment e ON e.id = re.equipment_id
		 ORDER BY re.room_id, e.name`)
	if err != nil {
		return nil, err
	}
	defer eqRows.Close()
	for eqRows.Next() {
		var (
			roomID uint64
			e      model.Equipment
		)
		if err := eqRows.Scan(&roomID, &e.ID, &e.Name); err != nil {
			return nil, err
		}
		if i, ok := index[roomID]; ok {
			rooms[i].Equipment = append(rooms[i].Equipment, e)
		}
	}
	return rooms, eqRows.Err()
}

// AddEquipment registers an equipment name in the catalogue.  It
// reports whether the name was new.
func (r *RoomRepo) AddEquipment(ctx context.Context, name string) (bool, error) {
	return addEquipment(ctx, r.db, name)
}

func addEquipment(ctx context.Context, q queryer, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidCSV
	}
	res, err := q.ExecContext(ctx, `INSERT IGNORE INTO equipment (name) VALUES (?)`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AttachEquipment links a catalogue entry to a room.  Linking twice is a
// no-op.  Unknown rooms yield model.ErrRoomNotFound.
func (r *RoomRepo) AttachEquipment(ctx context.Context, roomID uint64, name string) error {
	return attachEquipment(ctx, r.db, roomID, name)
}

func attachEquipment(ctx context.Context, q queryer, roomID uint64, name string) error {
	var exists uint64
	if err := q.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = ?`, roomID).Scan(&exists); err != nil {
		return notFound(err, model.ErrRoomNotFound)
	}
	_, err := q.ExecContext(ctx,
		`INSERT IGNORE INTO room_equipment (room_id, equipment_id)
		 SELECT ?, id FROM equipment WHERE name = ?`,
		roomID, strings.TrimSpace(name))
	return err
}
