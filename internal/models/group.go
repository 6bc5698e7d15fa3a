package models

// MemberStatusActive marks a membership that may read and post in the group chat.
const MemberStatusActive = "ACTIVE"

// Group represents a study group.
type Group struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// GroupRef is the group reference embedded in chat messages.
type GroupRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is the profile data the chat needs about a member.
type User struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Email     string  `db:"email" json:"email"`
	AvatarURL *string `db:"avatar_url" json:"avatarUrl,omitempty"`
}

// Sender is the author reference embedded in chat messages.
type Sender struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// SenderFromUser converts a user row into a message sender reference.
func SenderFromUser(u User) Sender {
	s := Sender{ID: u.ID, Name: u.Name, Email: u.Email}
	if u.AvatarURL != nil {
		s.AvatarURL = *u.AvatarURL
	}
	return s
}
