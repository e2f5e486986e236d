package shared

import "context"

type userContextKey struct{}

// ContextWithUser stores the authenticated tenant user ID in context.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext extracts the authenticated user ID, "" when absent.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey{}).(string)
	return id
}
