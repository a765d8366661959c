package domain

// Member ties a user to the room it currently belongs to.
type Member struct {
	User *User
	Room Room
}

func NewMember(user *User, room Room) *Member {
	return &Member{User: user, Room: room}
}
