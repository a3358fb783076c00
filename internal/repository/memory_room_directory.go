package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// ErrRoomExists is returned when a room id is already taken.
var ErrRoomExists = errors.New("room already exists")

// MemoryRoomDirectory keeps rooms in process.  Seat ids are renumbered on
// insert so that they are unique across rooms, which keeps
// FindRoomOwningSeat unambiguous.
type MemoryRoomDirectory struct {
	mu         sync.RWMutex
	rooms      map[uint64]*model.Room
	order      []uint64
	seatOwner  map[uint64]uint64
	equipment  []model.Equipment
	nextRoomID uint64
	nextSeatID uint64
}

// NewMemoryRoomDirectory returns an empty directory.
func NewMemoryRoomDirectory() *MemoryRoomDirectory {
	return &MemoryRoomDirectory{
		rooms:     make(map[uint64]*model.Room),
		seatOwner: make(map[uint64]uint64),
	}
}

// AddRoom stores a copy of room.  A zero id is replaced by the next free
// id; seats receive directory-wide ids in their current order.  The
// stored room is returned.  Room names are unique ignoring case, as in
// the rooms table; a taken name yields ErrConflict.
func (d *MemoryRoomDirectory) AddRoom(room *model.Room) (*model.Room, error) {
	if room == nil || room.Name == "" {
		return nil, model.ErrInvalidRoom
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	id := room.ID
	if id == 0 {
		id = d.nextRoomID + 1
	}
	if _, exists := d.rooms[id]; exists {
		return nil, ErrRoomExists
	}
	if d.nameTakenLocked(room.Name) {
		return nil, ErrConflict
	}
	if id > d.nextRoomID {
		d.nextRoomID = id
	}

	stored := cloneRoom(room)
	stored.ID = id
	for i := range stored.Seats {
		d.nextSeatID++
		stored.Seats[i] = model.Seat{ID: d.nextSeatID, RoomID: id}
		d.seatOwner[d.nextSeatID] = id
	}
	d.rooms[id] = stored
	d.order = append(d.order, id)
	return cloneRoom(stored), nil
}

// CreateRoom builds and stores a new room with capacity seats.
func (d *MemoryRoomDirectory) CreateRoom(ctx context.Context, name string, capacity int, floor *int) (*model.Room, error) {
	room, err := model.NewRoom(0, name, capacity, floor)
	if err != nil {
		return nil, err
	}
	return d.AddRoom(room)
}

// AddEquipment registers an equipment name, skipping duplicates.  It
// reports whether the name was new.
func (d *MemoryRoomDirectory) AddEquipment(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidCSV
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.equipment {
		if e.Name == name {
			return false, nil
		}
	}
	d.equipment = append(d.equipment, model.Equipment{ID: uint64(len(d.equipment) + 1), Name: name})
	return true, nil
}

// AttachEquipment links the catalogue entry called name to roomID.
// Unknown names are ignored; linking twice is a no-op.
func (d *MemoryRoomDirectory) AttachEquipment(ctx context.Context, roomID uint64, name string) error {
	name = strings.TrimSpace(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return model.ErrRoomNotFound
	}
	for _, e := range d.equipment {
		if e.Name != name {
			continue
		}
		for _, have := range room.Equipment {
			if have.ID == e.ID {
				return nil
			}
		}
		room.Equipment = append(room.Equipment, e)
		return nil
	}
	return nil
}

// ImportRooms adds every room of a `name,capacity[,floor]` CSV file.
// The file is parsed completely before any room is stored.
func (d *MemoryRoomDirectory) ImportRooms(ctx context.Context, src io.Reader) (int, error) {
	rows, err := ParseRooms(src)
	if err != nil {
		return 0, err
	}
	rooms := make([]*model.Room, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		room, err := model.NewRoom(0, row.Name, row.Capacity, row.Floor)
		if err != nil {
			return 0, err
		}
		key := strings.ToLower(room.Name)
		if seen[key] {
			return 0, ErrConflict
		}
		seen[key] = true
		rooms = append(rooms, room)
	}
	d.mu.RLock()
	for _, room := range rooms {
		if d.nameTakenLocked(room.Name) {
			d.mu.RUnlock()
			return 0, ErrConflict
		}
	}
	d.mu.RUnlock()
	for _, room := range rooms {
		if _, err := d.AddRoom(room); err != nil {
			return 0, err
		}
	}
	return len(rooms), nil
}

// ImportEquipment registers every name of a `name[,room_id]` CSV file
// and links it to the given room.  It returns the number of new names.
func (d *MemoryRoomDirectory) ImportEquipment(ctx context.Context, src io.Reader) (int, error) {
	rows, err := ParseEquipment(src)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.RoomID == 0 {
			continue
		}
		if _, err := d.GetRoom(ctx, row.RoomID); err != nil {
			return 0, err
		}
	}
	added := 0
	for _, row := range rows {
		isNew, err := d.AddEquipment(ctx, row.Name)
		if err != nil {
			return added, err
		}
		if isNew {
			added++
		}
		if row.RoomID != 0 {
			if err := d.AttachEquipment(ctx, row.RoomID, row.Name); err != nil {
				return added, err
			}
		}
	}
	return added, nil
}

// GetRoom returns a copy of the room with the given id.
func (d *MemoryRoomDirectory) GetRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

// FindRoomOwningSeat returns the room that owns seatID.
func (d *MemoryRoomDirectory) FindRoomOwningSeat(ctx context.Context, seatID uint64) (*model.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomID, ok := d.seatOwner[seatID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return cloneRoom(d.rooms[roomID]), nil
}

// ListRooms returns all rooms in insertion order.
func (d *MemoryRoomDirectory) ListRooms(ctx context.Context) ([]model.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Room, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *cloneRoom(d.rooms[id]))
	}
	return out, nil
}

func (d *MemoryRoomDirectory) nameTakenLocked(name string) bool {
	for _, r := range d.rooms {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func cloneRoom(r *model.Room) *model.Room {
	cp := *r
	cp.Seats = append([]model.Seat(nil), r.Seats...)
	cp.Equipment = append([]model.Equipment(nil), r.Equipment...)
	if r.Floor != nil {
		f := *r.Floor
		cp.Floor = &f
	}
	return &cp
}
