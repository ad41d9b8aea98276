package eventapi

import (
	"context"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/chatpaint/paints/pkg/logger"
)

// Sink receives the paint changes carried by the event stream.
// *paints.Registry satisfies it.
type Sink interface {
	AddPaint(ctx context.Context, description []byte) bool
	AssignPaintToUser(paintID, user string) bool
	ClearPaintFromUser(paintID, user string) bool
}

// handleDispatch applies one dispatch to sink. Dispatches for other cosmetic
// kinds and malformed bodies are ignored.
func handleDispatch(ctx context.Context, sink Sink, log logger.Logger, raw []byte) {
	var d Dispatch
	if err := json.Unmarshal(raw, &d); err != nil {
		log.Warn("malformed dispatch", "error", err)
		return
	}

	object, dataType, _, err := jsonparser.Get(d.Body, "object")
	if err != nil || dataType != jsonparser.Object {
		log.Debug("dispatch without object", "type", d.Type)
		return
	}
	if kind, _ := jsonparser.GetString(object, "kind"); kind != KindPaint {
		return
	}

	switch d.Type {
	case TypeCosmeticCreate:
		data, dataType, _, err := jsonparser.Get(object, "data")
		if err != nil || dataType != jsonparser.Object {
			log.Warn("paint cosmetic without data")
			return
		}
		added := sink.AddPaint(ctx, data)
		log.Debug("paint created", "added", added)

	case TypeEntitlementCreate, TypeEntitlementDelete:
		refID, _ := jsonparser.GetString(object, "ref_id")
		login := entitledLogin(object)
		if refID == "" || login == "" {
			log.Warn("paint entitlement without ref_id or user", "type", d.Type)
			return
		}

		if d.Type == TypeEntitlementCreate {
			ok := sink.AssignPaintToUser(refID, login)
			log.Debug("paint entitled", "paint_id", refID, "user", login, "applied", ok)
		} else {
			ok := sink.ClearPaintFromUser(refID, login)
			log.Debug("paint entitlement removed", "paint_id", refID, "user", login, "applied", ok)
		}

	default:
		log.Debug("ignoring dispatch", "type", d.Type)
	}
}

// entitledLogin returns the Twitch login of the entitled user, falling back
// to the account username when no Twitch connection is listed.
func entitledLogin(object []byte) string {
	var login string
	_, _ = jsonparser.ArrayEach(object, func(value []byte, _ jsonparser.ValueType, _ int, err error) {
		if err != nil || login != "" {
			return
		}
		if platform, _ := jsonparser.GetString(value, "platform"); platform == "TWITCH" {
			login, _ = jsonparser.GetString(value, "username")
		}
	}, "user", "connections")

	if login == "" {
		login, _ = jsonparser.GetString(object, "user", "username")
	}
	return login
}
