package model

import "time"

// Notification mirrors a row of the `notifications` table.  A nil
// TargetUserID marks a broadcast addressed to every user.
//
// Fields:
//  ID           – primary key identifier.
//  TargetUserID – recipient, or nil for a broadcast.
//  Message      – free text shown to the user.
//  CreatedAt    – timestamp of creation.
type Notification struct {
	ID           uint64    `json:"id"`                       // notifications.id
	TargetUserID *uint64   `json:"target_user_id,omitempty"` // notifications.target_user_id (nullable)
	Message      string    `json:"message"`                  // notifications.message
	CreatedAt    time.Time `json:"created_at"`               // notifications.created_at
}

// Broadcast reports whether the notification has no specific target.
func (n Notification) Broadcast() bool { return n.TargetUserID == nil }
