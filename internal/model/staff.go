package model

import "time"

// StaffProfile stores lightweight per-member settings.
type StaffProfile struct {
	UserID      string
	GroupID     string
	DisplayName string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
