package types

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Cbor is the codec used for everything the engine persists. Encoding is
// deterministic (core deterministic encoding, RFC 8949 §4.2.1) so that two
// nodes replaying the same blocks produce byte-identical records.
var Cbor = newCborHandler()

type cborHandler struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func newCborHandler() cborHandler {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborHandler{encMode: encMode, decMode: decMode}
}

func (c cborHandler) Marshal(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

func (c cborHandler) Unmarshal(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}

func (c cborHandler) Encode(w io.Writer, v any) error {
	return c.encMode.NewEncoder(w).Encode(v)
}

func (c cborHandler) GetEncoder(w io.Writer) (*cbor.Encoder, error) {
	return c.encMode.NewEncoder(w), nil
}

func (c cborHandler) GetDecoder(r io.Reader) *cbor.Decoder {
	return c.decMode.NewDecoder(r)
}

func (c cborHandler) Decode(r io.Reader, v any) error {
	return c.decMode.NewDecoder(r).Decode(v)
}
