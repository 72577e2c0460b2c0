package events

import "context"

type experimentIDKey struct{}

// ContextWithExperimentID returns a new context carrying the experiment ID.
func ContextWithExperimentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, experimentIDKey{}, id)
}

// ExperimentIDFromContext extracts the experiment ID from the context, or "" if absent.
func ExperimentIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(experimentIDKey{}).(string); ok {
		return id
	}
	return ""
}
