package model

// Summary is the aggregate report over rooms, users and reservations.
type Summary struct {
	TotalReservations     int             `json:"totalReservations"`
	TotalUsers            int             `json:"totalUsers"`
	TotalRooms            int             `json:"totalRooms"`
	TotalSeats            int             `json:"totalSeats"`
	ConfirmedReservations int             `json:"confirmedReservations"`
	PendingReservations   int             `json:"pendingReservations"`
	Rooms                 []RoomStat      `json:"roomStatistics"`
	Users                 []UserStat      `json:"userStatistics"`
	Equipment             []EquipmentStat `json:"equipmentStatistics"`
}

type RoomStat struct {
	RoomID           uint64 `json:"roomId"`
	RoomName         string `json:"roomName"`
	Capacity         int    `json:"capacity"`
	Floor            *int   `json:"floor,omitempty"`
	SeatCount        int    `json:"seatCount"`
	ReservationCount int    `json:"reservationCount"`
	ConfirmedCount   int    `json:"confirmedCount"`
}

type UserStat struct {
	UserID           uint64 `json:"userId"`
	Username         string `json:"username"`
	Role             Role   `json:"role"`
	ReservationCount int    `json:"reservationCount"`
	ConfirmedCount   int    `json:"confirmedCount"`
}

type EquipmentStat struct {
	EquipmentID   uint64 `json:"equipmentId"`
	EquipmentName string `json:"equipmentName"`
	RoomCount     int    `json:"roomCount"`
}
