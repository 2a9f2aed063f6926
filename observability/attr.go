package observability

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/gaecom/substrate/types"
)

const (
	ReferendumKey attribute.Key = "referendum"
	TrackKey      attribute.Key = "track"
	BlockKey      attribute.Key = "block"
)

func Referendum(index types.ReferendumIndex) attribute.KeyValue {
	return ReferendumKey.Int64(int64(index))
}

func Track(id types.TrackID) attribute.KeyValue {
	return TrackKey.Int64(int64(id))
}

func Block(n types.BlockNumber) attribute.KeyValue {
	return BlockKey.Int64(int64(n)) /* #nosec G115 block numbers do not exceed int64 max value */
}

/*
ErrStatus returns attribute named "status" with value "ok" if the param
err is nil and "err" when it is not.
*/
func ErrStatus(err error) attribute.KeyValue {
	status := "ok"
	if err != nil {
		status = "err"
	}
	return attribute.String("status", status)
}
