package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBOR implements Codec with fxamacker/cbor.
// Times are encoded as RFC 3339 strings with nanoseconds.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = (*CBOR)(nil)

func NewCBOR() *CBOR {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic("unreachable: invalid cbor encode options")
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("unreachable: invalid cbor decode options")
	}
	return &CBOR{enc: enc, dec: dec}
}

func (c *CBOR) NewEncoder(w io.Writer) Encoder {
	return c.enc.NewEncoder(w)
}

func (c *CBOR) NewDecoder(r io.Reader) Decoder {
	return c.dec.NewDecoder(r)
}
