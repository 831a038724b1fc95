package agent

import "context"

// RequestInfo identifies the pipeline request a run belongs to.
type RequestInfo struct {
	RequestID string
	ThreadID  string
}

type requestInfoKey struct{}

// WithRequestInfo attaches request identifiers used to stamp emitted events.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the identifiers set by WithRequestInfo.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
