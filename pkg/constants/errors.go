package constants

import "errors"

// Errors
var (
	ErrUnparseable         = errors.New("unparseable paint")
	ErrNoImageURL          = errors.New("paint has no image url")
	ErrNoImageStore        = errors.New("image store is not set")
	ErrUnsupportedImage    = errors.New("unsupported image format")
	ErrImageTooLarge       = errors.New("image exceeds size limit")
	ErrUnexpectedStatus    = errors.New("unexpected http status")
	ErrInvalidPayload      = errors.New("invalid cosmetics payload")
	ErrInvalidIdentifier   = errors.New("invalid user identifier")
	ErrNoBaseURL           = errors.New("base url not set")
	ErrClosed              = errors.New("connection closed")
	ErrNoSnapshot          = errors.New("no snapshot")
	ErrSnapshotVersion     = errors.New("unsupported snapshot version")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrAlreadyConnected    = errors.New("already connected")
	ErrInvalidStateChange  = errors.New("invalid connection state transition")
	ErrHeartbeatTimeout    = errors.New("heartbeat timeout")
	ErrServerRequestedStop = errors.New("server ended the stream")
)
