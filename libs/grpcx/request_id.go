package grpcx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey struct{}

// RequestIDMetadataKey carries the request id across gRPC hops. Metadata keys
// are lowercased by gRPC, so define it that way.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func NewRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
