// Package interceptor implements the two pluggable message hooks of
// spec.md §6: application_message_interceptor and
// undelivered_message_interceptor.
package interceptor

import (
	"context"

	"github.com/qingcloudhx/mqttcore/packet"
)

// Context is the shared shape both hooks receive, built fresh for each
// dispatch-loop iteration (spec.md §4.6 step 2).
type Context struct {
	// SenderClientID is options.client_id for a server-originated message,
	// or the publishing connection's client id.
	SenderClientID string

	// SessionItems is the sender's session items map (or the process-wide
	// ServerSessionItems for a server-originated message).
	SessionItems map[string]any

	// ApplicationMessage is the flowing message. An interceptor may mutate
	// it in place or replace it; setting it to nil vetoes delivery.
	ApplicationMessage *packet.Message

	// AcceptPublish defaults to true; an interceptor sets it false to veto
	// delivery without touching ApplicationMessage.
	AcceptPublish bool

	// CloseConnection requests the sender connection be stopped, without
	// aborting dispatch of this message (spec.md §4.6 step 2).
	CloseConnection bool
}

// NewContext builds a Context defaulted to accept, per spec.md §4.6 step 2.
func NewContext(senderClientID string, sessionItems map[string]any, msg *packet.Message) *Context {
	return &Context{
		SenderClientID:     senderClientID,
		SessionItems:       sessionItems,
		ApplicationMessage: msg,
		AcceptPublish:      true,
	}
}

// ApplicationMessageInterceptor observes or vetoes every message flowing
// through the dispatch loop before fan-out.
type ApplicationMessageInterceptor interface {
	Intercept(ctx context.Context, ictx *Context) error
}

// UndeliveredMessageInterceptor is notified, best-effort, whenever a
// dispatched message matched zero subscribed sessions.
type UndeliveredMessageInterceptor interface {
	Intercept(ctx context.Context, ictx *Context) error
}

// ApplicationMessageInterceptorFunc adapts a plain function to
// ApplicationMessageInterceptor.
type ApplicationMessageInterceptorFunc func(ctx context.Context, ictx *Context) error

// Intercept calls f.
func (f ApplicationMessageInterceptorFunc) Intercept(ctx context.Context, ictx *Context) error {
	return f(ctx, ictx)
}

// UndeliveredMessageInterceptorFunc adapts a plain function to
// UndeliveredMessageInterceptor.
type UndeliveredMessageInterceptorFunc func(ctx context.Context, ictx *Context) error

// Intercept calls f.
func (f UndeliveredMessageInterceptorFunc) Intercept(ctx context.Context, ictx *Context) error {
	return f(ctx, ictx)
}
