// Package models holds the immutable paint value types handed to renderers.
package models

import (
	"github.com/goccy/go-json"
)

// Kind identifies which rendering strategy a Paint uses.
type Kind int

const (
	// KindUnknown is the zero value and is never produced by the parser.
	KindUnknown Kind = iota
	KindLinearGradient
	KindRadialGradient
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindLinearGradient:
		return "linear-gradient"
	case KindRadialGradient:
		return "radial-gradient"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// GradientStop is one (position, color) point of a gradient.
type GradientStop struct {
	Position float64 `json:"at"`
	Color    Color   `json:"color"`
}

// DropShadow is an offset, blurred, colored copy drawn beneath a paint.
type DropShadow struct {
	XOffset float64 `json:"x_offset"`
	YOffset float64 `json:"y_offset"`
	Radius  float64 `json:"radius"`
	Color   Color   `json:"color"`
}

// Paint is an immutable cosmetic effect. Exactly one variant payload is
// populated, selected by Kind. Every variant carries drop shadows.
//
// A *Paint is shared between the registry's paint table and every user it is
// assigned to; it must not be modified after construction.
type Paint struct {
	id          string
	name        string
	kind        Kind
	dropShadows []DropShadow

	// gradients
	color    *Color
	stops    []GradientStop
	repeat   bool
	angle    float64
	hasAngle bool

	// url
	image *Image
}

// NewLinearGradientPaint builds a linear gradient. base may be nil.
func NewLinearGradientPaint(id, name string, base *Color, stops []GradientStop, repeat bool, angle float64, shadows []DropShadow) *Paint {
	return &Paint{
		id:          id,
		name:        name,
		kind:        KindLinearGradient,
		color:       cloneColor(base),
		stops:       cloneSlice(stops),
		repeat:      repeat,
		angle:       angle,
		hasAngle:    true,
		dropShadows: cloneSlice(shadows),
	}
}

// NewRadialGradientPaint builds a radial gradient. Radial gradients have
// neither an angle nor a base color.
func NewRadialGradientPaint(id, name string, stops []GradientStop, repeat bool, shadows []DropShadow) *Paint {
	return &Paint{
		id:          id,
		name:        name,
		kind:        KindRadialGradient,
		stops:       cloneSlice(stops),
		repeat:      repeat,
		dropShadows: cloneSlice(shadows),
	}
}

// NewURLPaint builds an image paint around a loaded image handle.
func NewURLPaint(id, name string, img *Image, shadows []DropShadow) *Paint {
	return &Paint{
		id:          id,
		name:        name,
		kind:        KindURL,
		image:       img,
		dropShadows: cloneSlice(shadows),
	}
}

func (p *Paint) ID() string {
	return p.id
}

func (p *Paint) Name() string {
	return p.name
}

func (p *Paint) Kind() Kind {
	return p.kind
}

// Color returns the base color of a linear gradient, if it has one.
func (p *Paint) Color() (Color, bool) {
	if p.color == nil {
		return Color{}, false
	}
	return *p.color, true
}

// Stops returns a copy of the gradient stops. URL paints have none.
func (p *Paint) Stops() []GradientStop {
	return cloneSlice(p.stops)
}

func (p *Paint) Repeat() bool {
	return p.repeat
}

// Angle returns the direction of a linear gradient in degrees.
func (p *Paint) Angle() (float64, bool) {
	return p.angle, p.hasAngle
}

// DropShadows returns a copy of the drop shadows, in source order.
func (p *Paint) DropShadows() []DropShadow {
	return cloneSlice(p.dropShadows)
}

// Image returns the image handle of a URL paint.
func (p *Paint) Image() (*Image, bool) {
	return p.image, p.image != nil
}

type paintJSON struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Color       *Color         `json:"color,omitempty"`
	Stops       []GradientStop `json:"stops,omitempty"`
	Repeat      bool           `json:"repeat"`
	Angle       *float64       `json:"angle,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	DropShadows []DropShadow   `json:"drop_shadows"`
}

// MarshalJSON renders the paint for inspection. It is not the upstream
// description format.
func (p *Paint) MarshalJSON() ([]byte, error) {
	out := paintJSON{
		ID:          p.id,
		Name:        p.name,
		Kind:        p.kind,
		Color:       p.color,
		Stops:       p.stops,
		Repeat:      p.repeat,
		DropShadows: p.dropShadows,
	}
	if out.DropShadows == nil {
		out.DropShadows = []DropShadow{}
	}
	if p.hasAngle {
		angle := p.angle
		out.Angle = &angle
	}
	if p.image != nil {
		out.ImageURL = p.image.URL
	}
	return json.Marshal(out)
}

func cloneColor(c *Color) *Color {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func cloneSlice[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
