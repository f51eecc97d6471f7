package entity

import "time"

const (
	PresenceOnline        = "online"
	PresenceOffline       = "offline"
	PresenceInLiveSession = "in_live_session"
)

// Presence is a user's best-effort online signal, independent of any
// session. Absence of a record is a valid state meaning offline, so LastSeen
// is a pointer: nil for users who never heartbeated.
type Presence struct {
	UserId   string                 `json:"userId"`
	Status   string                 `json:"status"`
	LastSeen *time.Time             `json:"lastSeen"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// OfflinePresence is the default returned for any user without a stored
// record.
func OfflinePresence(userId string) *Presence {
	return &Presence{
		UserId: userId,
		Status: PresenceOffline,
	}
}
