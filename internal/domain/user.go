package domain

import "time"

const DefaultLocale = "en"

// User is a chat account owning alerts. ID is the messaging platform user id.
type User struct {
	ID         int64
	Username   string
	Locale     string
	LastAccess time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
