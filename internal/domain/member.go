package domain

// Member is a user's presence in a room.
// No transport or lifecycle logic here.
type Member struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// NewMember is the presence view of user.
func NewMember(user *User) Member {
	return Member{ID: user.ID, Name: user.Name, Avatar: user.Avatar}
}
