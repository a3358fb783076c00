package repository

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// ErrInvalidCSV wraps every parse failure of an import file.
var ErrInvalidCSV = errors.New("invalid csv")

// RoomRow is one parsed line of a rooms import file.
type RoomRow struct {
	Name     string
	Capacity int
	Floor    *int
}

// EquipmentRow is one parsed line of an equipment import file.  RoomID
// is zero when the line only registers the catalogue entry.
type EquipmentRow struct {
	Name   string
	RoomID uint64
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(records) > 0 && len(records[0]) > 0 && strings.EqualFold(strings.TrimSpace(records[0][0]), "name") {
		records = records[1:]
	}
	return records, nil
}

// ParseRooms reads `name,capacity[,floor]` lines.  A header row starting
// with "name" is skipped.  The whole file is rejected on the first bad
// line.
func ParseRooms(r io.Reader) ([]RoomRow, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	out := make([]RoomRow, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 || len(rec) > 3 {
			return nil, fmt.Errorf("%w: line %d: expected name,capacity[,floor]", ErrInvalidCSV, i+1)
		}
		row := RoomRow{Name: strings.TrimSpace(rec[0])}
		row.Capacity, err = strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || row.Capacity <= 0 || row.Name == "" {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, i+1, model.ErrInvalidRoom)
		}
		if len(rec) == 3 && strings.TrimSpace(rec[2]) != "" {
			f, err := strconv.Atoi(strings.TrimSpace(rec[2]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad floor %q", ErrInvalidCSV, i+1, rec[2])
			}
			row.Floor = &f
		}
		out = append(out, row)
	}
	return out, nil
}

// ParseEquipment reads `name[,room_id]` lines.  Blank names are skipped.
func ParseEquipment(r io.Reader) ([]EquipmentRow, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	out := make([]EquipmentRow, 0, len(records))
	for i, rec := range records {
		row := EquipmentRow{Name: strings.TrimSpace(rec[0])}
		if row.Name == "" {
			continue
		}
		if len(rec) > 1 && strings.TrimSpace(rec[1]) != "" {
			id, err := strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("%w: line %d: bad room id %q", ErrInvalidCSV, i+1, rec[1])
			}
			row.RoomID = id
		}
		out = append(out, row)
	}
	return out, nil
}

// ImportRepo loads rooms and equipment from CSV files into MySQL.
type ImportRepo struct {
	db *sql.DB
}

// NewImportRepo returns an ImportRepo bound to db.
func NewImportRepo(db *sql.DB) *ImportRepo { return &ImportRepo{db: db} }

// ImportRooms creates every room of the file together with its seats.
// Either all rooms are stored or none.  It returns the number of rooms
// created.
func (r *ImportRepo) ImportRooms(ctx context.Context, src io.Reader) (int, error) {
	rows, err := ParseRooms(src)
	if err != nil {
		return 0, err
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			room, err := model.NewRoom(0, row.Name, row.Capacity, row.Floor)
			if err != nil {
				return err
			}
			if err := insertRoomTx(ctx, tx, room); err != nil {
				return fmt.Errorf("room %q: %w", row.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ImportEquipment registers every equipment name of the file, skipping
// names already in the catalogue, and links it to the room given on
// the same line.  It returns the number of new catalogue entries.
func (r *ImportRepo) ImportEquipment(ctx context.Context, src io.Reader) (int, error) {
	rows, err := ParseEquipment(src)
	if err != nil {
		return 0, err
	}
	added := 0
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			isNew, err := addEquipment(ctx, tx, row.Name)
			if err != nil {
				return err
			}
			if isNew {
				added++
			}
			if row.RoomID != 0 {
				if err := attachEquipment(ctx, tx, row.RoomID, row.Name); err != nil {
					return fmt.Errorf("equipment %q: %w", row.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (r *ImportRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
