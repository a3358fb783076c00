package model

// Equipment is a catalogue entry (projector, whiteboard, ...) that can be
// linked to many rooms.
type Equipment struct {
	ID   uint64 `json:"id"`   // equipment.id
	Name string `json:"name"` // equipment.name
}
