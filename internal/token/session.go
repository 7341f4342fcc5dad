package token

import "time"

// session is the server-side record LocalMinter persists per
// (user_id, session_type), so revoking one session_type (e.g.
// "oauth2") never touches a host's other session namespaces.
// It is private to this package — the core's data model (internal/models)
// never needs to know sessions exist.
type session struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      string `gorm:"not null;uniqueIndex:idx_user_session_type"`
	SessionType string `gorm:"not null;uniqueIndex:idx_user_session_type"`

	CurrentIndex  string `gorm:"not null"`
	PreviousIndex string
	PreviousUntil time.Time

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (session) TableName() string {
	return "token_sessions"
}
