package models

import "time"

// Lead is the triggering business entity consumed by the engine. The
// record store owns its full shape; only the fields the engine reads are
// modeled here.
type Lead struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	StatusID  string    `json:"status_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusChange is the audit row written whenever an updateStatus step
// changes a lead's status.
type StatusChange struct {
	ID           string    `json:"id"`
	LeadID       string    `json:"lead_id"`
	FromStatusID string    `json:"from_status_id"`
	ToStatusID   string    `json:"to_status_id"`
	ChangedBy    string    `json:"changed_by"`
	CreatedAt    time.Time `json:"created_at"`
}
