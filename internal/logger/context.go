package logger

import "context"

// LogContext carries correlation fields through a transfer run.
// Attach it once per run (and per file) and every *Ctx log call will
// prepend its fields automatically.
type LogContext struct {
	RunID    string
	FileID   int64
	CourseID int64
	Resource string
}

type contextKey struct{}

// NewContext returns a context carrying the given LogContext.
func NewContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext extracts the LogContext, or nil if none is attached.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// WithFile returns a child context whose LogContext is scoped to a file.
// Run-level fields are preserved.
func WithFile(ctx context.Context, fileID, courseID int64) context.Context {
	lc := FromContext(ctx)
	next := &LogContext{FileID: fileID, CourseID: courseID}
	if lc != nil {
		next.RunID = lc.RunID
		next.Resource = lc.Resource
	}
	return NewContext(ctx, next)
}
