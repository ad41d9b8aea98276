// Package codec abstracts the binary encodings used for on-disk state.
package codec

import "io"

// Codec streams values of one encoding to and from files.
type Codec interface {
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}
