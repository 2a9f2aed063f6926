package types

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	OriginRoot OriginKind = iota
	OriginNone
	OriginSigned
)

type (
	OriginKind uint8

	/*
	Origin is the privileged origin a proposal would be dispatched with once
	enacted. Track registry uses it to classify the proposal into a track.
	*/
	Origin struct {
		_      struct{} `cbor:",toarray"`
		Kind   OriginKind
		Signer AccountID // only meaningful for OriginSigned
	}
)

func RootOrigin() Origin { return Origin{Kind: OriginRoot} }

func NoneOrigin() Origin { return Origin{Kind: OriginNone} }

func SignedOrigin(who AccountID) Origin { return Origin{Kind: OriginSigned, Signer: who} }

// Class returns origin name without the signer, ie "root", "none" or "signed".
func (o Origin) Class() string {
	switch o.Kind {
	case OriginRoot:
		return "root"
	case OriginNone:
		return "none"
	case OriginSigned:
		return "signed"
	default:
		return fmt.Sprintf("origin(%d)", o.Kind)
	}
}

func (o Origin) String() string {
	if o.Kind == OriginSigned {
		return fmt.Sprintf("signed:%d", o.Signer)
	}
	return o.Class()
}

// ParseOrigin is the inverse of Origin.String.
func ParseOrigin(s string) (Origin, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "root":
		return RootOrigin(), nil
	case "none":
		return NoneOrigin(), nil
	}
	if signer, ok := strings.CutPrefix(s, "signed:"); ok {
		who, err := strconv.ParseUint(signer, 10, 64)
		if err != nil {
			return Origin{}, fmt.Errorf("invalid signer in origin %q: %w", s, err)
		}
		return SignedOrigin(AccountID(who)), nil
	}
	return Origin{}, fmt.Errorf("unknown origin %q", s)
}

func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Origin) UnmarshalText(b []byte) error {
	v, err := ParseOrigin(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
