package eventapi

import (
	"github.com/goccy/go-json"
)

// Opcode identifies the kind of an event stream message.
type Opcode int

const (
	OpDispatch    Opcode = 0
	OpHello       Opcode = 1
	OpHeartbeat   Opcode = 2
	OpReconnect   Opcode = 4
	OpAck         Opcode = 5
	OpError       Opcode = 6
	OpEndOfStream Opcode = 7
	OpSubscribe   Opcode = 35
	OpUnsubscribe Opcode = 36
)

func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "DISPATCH"
	case OpHello:
		return "HELLO"
	case OpHeartbeat:
		return "HEARTBEAT"
	case OpReconnect:
		return "RECONNECT"
	case OpAck:
		return "ACK"
	case OpError:
		return "ERROR"
	case OpEndOfStream:
		return "END_OF_STREAM"
	case OpSubscribe:
		return "SUBSCRIBE"
	case OpUnsubscribe:
		return "UNSUBSCRIBE"
	default:
		return "UNKNOWN"
	}
}

// Event types the client subscribes to.
const (
	TypeCosmeticAll       = "cosmetic.*"
	TypeEntitlementAll    = "entitlement.*"
	TypeCosmeticCreate    = "cosmetic.create"
	TypeEntitlementCreate = "entitlement.create"
	TypeEntitlementDelete = "entitlement.delete"
)

// KindPaint is the cosmetic kind handled by the client. Badges and other
// kinds are ignored.
const KindPaint = "PAINT"

// Message is the envelope of every frame on the event stream.
type Message struct {
	Op        Opcode          `json:"op"`
	Timestamp int64           `json:"t,omitempty"`
	Data      json.RawMessage `json:"d,omitempty"`
}

type Hello struct {
	// HeartbeatInterval is in milliseconds.
	HeartbeatInterval int64  `json:"heartbeat_interval"`
	SessionID         string `json:"session_id"`
	SubscriptionLimit int    `json:"subscription_limit"`
}

type EndOfStream struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Subscription struct {
	Type      string            `json:"type"`
	Condition map[string]string `json:"condition"`
}

// Dispatch carries one event. Body is decoded lazily by type.
type Dispatch struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// ChannelCondition scopes a subscription to one Twitch channel.
func ChannelCondition(channelID string) map[string]string {
	return map[string]string{
		"ctx":      "channel",
		"id":       channelID,
		"platform": "TWITCH",
	}
}

// NewMessage encodes d as the payload of an op frame.
func NewMessage(op Opcode, d any) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Op: op, Data: data})
}
