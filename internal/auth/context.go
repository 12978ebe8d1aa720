package auth

import "context"

type subjectContextKey struct{}

var defaultSubjectContextKey = subjectContextKey{}

// SetSubjectContext stores the verified subject claim on the request context.
func SetSubjectContext(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, defaultSubjectContextKey, subject)
}

// SubjectFromContext returns the verified subject stored by the verifier
// middleware. The second return is false on unauthenticated requests.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(defaultSubjectContextKey).(string)
	return subject, ok && subject != ""
}
