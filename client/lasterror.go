package client

import "context"

// lastErrorKey is the context key under which a *lastErrorBuf is stashed by
// WithLastErrorCapture.
type lastErrorKey struct{}

type lastErrorBuf struct {
	msg string
}

// WithLastErrorCapture returns a context that records the message of each
// error this package reports during an operation run against it; a later
// error replaces an earlier one, so LastError returns the most recent. This
// exists for callers embedding this package behind a narrower ABI (e.g. a
// cgo shim exposing a 0/1 return code) that cannot propagate a Go error
// value directly and need a retrievable message instead. Plain Go callers
// should just check the returned error.
func WithLastErrorCapture(ctx context.Context) context.Context {
	return context.WithValue(ctx, lastErrorKey{}, &lastErrorBuf{})
}

// LastError returns the message captured by WithLastErrorCapture, or "" if
// ctx was not prepared with it or no error occurred.
func LastError(ctx context.Context) string {
	buf, ok := ctx.Value(lastErrorKey{}).(*lastErrorBuf)
	if !ok {
		return ""
	}
	return buf.msg
}

func recordLastError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if buf, ok := ctx.Value(lastErrorKey{}).(*lastErrorBuf); ok {
		buf.msg = err.Error()
	}
}
