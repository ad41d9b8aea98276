package constants

import "time"

// Upstream endpoints used when nothing else is configured.
const (
	DefaultAPIURL    = "https://7tv.io"
	DefaultEventsURL = "wss://events.7tv.io/v3"
	CosmeticsPath    = "/v2/cosmetics"
)

// UserIdentifierParam is the query parameter that selects how the
// cosmetics endpoint identifies users in each paint's `users` array.
const UserIdentifierParam = "user_identifier"

// Valid values for UserIdentifierParam. The registry keys users by login.
const (
	UserIdentifierObjectID = "object_id"
	UserIdentifierTwitchID = "twitch_id"
	UserIdentifierLogin    = "login"
)

// StopEpsilon is added to the second of two gradient stops that share a
// position, so that gradient models which keep only one color per position
// still render a hard edge.
const StopEpsilon = 0.0000001

// PaintImageScale is the scale factor requested from the image store for
// URL paints.
const PaintImageScale = 1

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultMaxImageBytes   = 8 << 20
	DefaultImageCacheSize  = 512
	DefaultMissedHeartbeat = 3
	// DefaultHeartbeatInterval is used until the event server says otherwise.
	DefaultHeartbeatInterval = 25 * time.Second
	// CloseMessageCode is the WebSocket close code sent on a clean shutdown.
	CloseMessageCode = 1000
	// SessionIDLength is the length of session ids minted by the fake server.
	SessionIDLength = 16
)

// IsValidUserIdentifier reports whether id is accepted by the cosmetics endpoint.
func IsValidUserIdentifier(id string) bool {
	switch id {
	case UserIdentifierObjectID, UserIdentifierTwitchID, UserIdentifierLogin:
		return true
	}
	return false
}
