package models

import "time"

// Authorization records a user's standing consent for a client: the
// scope that consent actually covers. At most one row exists per
// (ClientID, ResourceOwnerID) pair — re-authorizing the same client
// widens Scope in place (union) rather than inserting a second row;
// narrowing only happens via the client-scope-cascade on external CRUD.
type Authorization struct {
	ID              uint        `gorm:"primaryKey;autoIncrement"`
	ClientID        string      `gorm:"not null;uniqueIndex:idx_client_owner;size:36"`
	ResourceOwnerID string      `gorm:"not null;uniqueIndex:idx_client_owner;index"`
	Scope           StringArray `gorm:"type:json;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Authorization) TableName() string {
	return "authorizations"
}
