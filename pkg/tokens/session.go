package tokens

import (
	"time"
)

// Session is the server-tracked record correlating issued tokens with a
// revocation capability, independent of token expiry.
type Session struct {
	UserID       string    `json:"user_id"`
	DeviceID     string    `json:"device_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}
