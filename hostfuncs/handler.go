package hostfuncs

import (
	"context"
	"fmt"

	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// HostFunc is a typed host function.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler accepts a CBOR request and returns a CBOR response.
// This is the common shape the engine adapter binds.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewCBORHandler wraps a typed HostFunc into a ByteHandler, decoding the
// request and encoding the response with the wire format.
func NewCBORHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := wireformat.Unmarshal(payload, &req); err != nil {
				return NewValidationError(fmt.Sprintf("malformed request: %v", err)).Encode(), nil
			}
		}

		respBytes, err := wireformat.Marshal(fn(ctx, req))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return respBytes, nil
	}
}
