package domain

type (
	RoomName string
	RoomID   string
)

const (
	RoomIDLength   = 6
	RoomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type Room struct {
	ID   RoomID   `json:"id"`
	Name RoomName `json:"name"`
}
