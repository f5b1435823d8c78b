package httpapi

import (
	"context"
)

// serverBaseCtx ends when the daemon shuts down. Long-lived /v1/events
// streams watch it so http.Server.Shutdown is not held up by open streams.
var serverBaseCtx = context.Background()

// SetBaseContext sets the daemon lifetime context; nil resets it.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives from b a context that also ends when a is done.
// stop releases the link to a and must be called when the handler returns.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b)
	unlink := context.AfterFunc(a, cancel)
	return ctx, func() {
		unlink()
		cancel()
	}
}
