package httpserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const voterIDKey ctxKey = "balota.voterID"

// WithVoterID stores the authenticated voter ID in context.
func WithVoterID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, voterIDKey, id)
}

// VoterIDFromCtx fetches the voter ID from context.
func VoterIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(voterIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
