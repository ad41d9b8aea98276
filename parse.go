package paints

import (
	"context"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/models"
)

// ImageStore resolves the image of a URL paint.
type ImageStore interface {
	Get(ctx context.Context, url string, scale float64) (*models.Image, error)
}

// Parser turns one upstream paint description into a Paint.
//
// Decoding is best-effort: missing or mistyped fields take their zero value.
// Only the function tag and, for URL paints, the image lookup can make a
// description unparseable.
type Parser struct {
	images ImageStore
	logger logger.Logger
}

// NewParser creates a Parser. A nil image store makes every URL paint
// unparseable.
func NewParser(images ImageStore, log logger.Logger) *Parser {
	return &Parser{
		images: images,
		logger: logger.OrNop(log),
	}
}

// Parse builds exactly one Paint from description, or returns an error
// wrapping constants.ErrUnparseable. It never retains partial state.
func (p *Parser) Parse(ctx context.Context, description []byte) (*models.Paint, error) {
	_, dataType, _, err := jsonparser.Get(description)
	if err != nil || dataType != jsonparser.Object {
		return nil, fmt.Errorf("%w: description is not an object", constants.ErrUnparseable)
	}

	id := getString(description, "id")
	name := getString(description, "name")
	base := parsePaintColor(description)
	repeat := getBool(description, "repeat")
	angle := getFloat(description, "angle")
	stops := parsePaintStops(description)
	shadows := parseDropShadows(description)

	function := getString(description, "function")
	switch function {
	case "LINEAR_GRADIENT", "linear-gradient":
		return models.NewLinearGradientPaint(id, name, base, stops, repeat, angle, shadows), nil
	case "RADIAL_GRADIENT", "radial-gradient":
		return models.NewRadialGradientPaint(id, name, stops, repeat, shadows), nil
	case "URL", "url":
		img, err := p.resolveImage(ctx, getString(description, "image_url"))
		if err != nil {
			return nil, fmt.Errorf("%w: paint %s: %w", constants.ErrUnparseable, id, err)
		}
		return models.NewURLPaint(id, name, img, shadows), nil
	}

	return nil, fmt.Errorf("%w: paint %s: unknown function %q", constants.ErrUnparseable, id, function)
}

func (p *Parser) resolveImage(ctx context.Context, url string) (*models.Image, error) {
	if url == "" {
		return nil, constants.ErrNoImageURL
	}
	if p.images == nil {
		return nil, constants.ErrNoImageStore
	}

	img, err := p.images.Get(ctx, url, constants.PaintImageScale)
	if err != nil {
		p.logger.Debug("paint image unavailable", "url", url, "error", err)
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("image store returned no image for %s", url)
	}
	return img, nil
}

// PaintID returns the id field of a description, or "" if it has none.
func PaintID(description []byte) string {
	return getString(description, "id")
}

// parsePaintColor returns nil when color is absent or null. Any other value
// is decoded as a packed color.
func parsePaintColor(description []byte) *models.Color {
	value, dataType, _, err := jsonparser.Get(description, "color")
	if err != nil || dataType == jsonparser.Null || dataType == jsonparser.NotExist {
		return nil
	}

	c := models.ColorFromRGBA(packedColor(value, dataType))
	return &c
}

// parsePaintStops keeps source order. A stop that repeats the previous
// stop's position is placed StopEpsilon after it, so runs of equal positions
// become p, p+e, p+2e and no two neighbours collapse into one.
func parsePaintStops(description []byte) []models.GradientStop {
	var stops []models.GradientStop
	lastRaw, lastStop := -1.0, -1.0

	eachElement(description, func(stop []byte) {
		raw := getFloat(stop, "at")
		position := raw
		if raw == lastRaw || raw == lastStop {
			position = lastStop + constants.StopEpsilon
		}
		lastRaw, lastStop = raw, position

		stops = append(stops, models.GradientStop{
			Position: position,
			Color:    models.ColorFromRGBA(getColor(stop, "color")),
		})
	}, "stops")

	return stops
}

func parseDropShadows(description []byte) []models.DropShadow {
	var shadows []models.DropShadow

	eachElement(description, func(shadow []byte) {
		shadows = append(shadows, models.DropShadow{
			XOffset: getFloat(shadow, "x_offset"),
			YOffset: getFloat(shadow, "y_offset"),
			Radius:  getFloat(shadow, "radius"),
			Color:   models.ColorFromRGBA(getColor(shadow, "color")),
		})
	}, "drop_shadows")

	return shadows
}

// eachElement calls fn for every element of the array at keys. Elements that
// are not objects are passed as empty objects so they decode to zero values.
func eachElement(data []byte, fn func(element []byte), keys ...string) {
	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if err != nil {
			return
		}
		if dataType != jsonparser.Object {
			value = []byte("{}")
		}
		fn(value)
	}, keys...)
}

func getString(data []byte, keys ...string) string {
	v, err := jsonparser.GetString(data, keys...)
	if err != nil {
		return ""
	}
	return v
}

func getFloat(data []byte, keys ...string) float64 {
	v, err := jsonparser.GetFloat(data, keys...)
	if err != nil {
		return 0
	}
	return v
}

func getBool(data []byte, keys ...string) bool {
	v, err := jsonparser.GetBoolean(data, keys...)
	if err != nil {
		return false
	}
	return v
}

func getColor(data []byte, keys ...string) uint32 {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return 0
	}
	return packedColor(value, dataType)
}

// packedColor accepts both the signed and the unsigned 32-bit spelling of a
// color. Anything that is not a number, or is out of 32-bit range, decodes
// to 0.
func packedColor(value []byte, dataType jsonparser.ValueType) uint32 {
	if dataType != jsonparser.Number {
		return 0
	}
	if n, err := jsonparser.ParseInt(value); err == nil {
		if n < -(1<<31) || n >= 1<<32 {
			return 0
		}
		return uint32(n)
	}
	f, err := jsonparser.ParseFloat(value)
	if err != nil || f < -(1<<31) || f >= 1<<32 {
		return 0
	}
	return uint32(int64(f))
}
