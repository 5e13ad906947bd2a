package tools

import "context"

type tokenCtxKey struct{}

// ContextWithStudentToken stores the caller's student API bearer token
// for the duration of one resolution. Tools pick it up when calling
// endpoints that need the student to be authenticated.
func ContextWithStudentToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// StudentTokenFromContext extracts the student API bearer token.
// Returns the empty string when the caller is unauthenticated.
func StudentTokenFromContext(ctx context.Context) string {
	if tok, ok := ctx.Value(tokenCtxKey{}).(string); ok {
		return tok
	}
	return ""
}
