package coreengine

import (
	"context"

	"github.com/qingcloudhx/mqttcore/connection"
	"github.com/qingcloudhx/mqttcore/dispatch"
	"github.com/qingcloudhx/mqttcore/interceptor"
	"github.com/qingcloudhx/mqttcore/packet"
)

// onPublish is the PublishSink every Connection's read loop forwards
// PUBLISH packets through, pushing each one onto the Dispatch Queue (C5).
func (e *Engine) onPublish(msg *packet.Message, sender *connection.Connection) {
	e.queue.Enqueue(dispatch.EnqueuedMessage{Message: msg, Sender: sender})
}

// DispatchApplicationMessage enqueues a server-originated message, spec.md
// §6's admin surface `dispatch_application_message`. sender is absent.
func (e *Engine) DispatchApplicationMessage(msg *packet.Message) {
	e.queue.Enqueue(dispatch.EnqueuedMessage{Message: msg, Sender: nil})
}

// dispatchLoop is the Dispatch Loop, C6 of spec.md §4.6. It is the sole
// consumer of the Dispatch Queue and runs until ctx is done.
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		item, ok := e.queue.Dequeue(ctx)
		if !ok {
			return
		}

		if e.metrics != nil {
			e.metrics.DispatchQueueDepth.Set(float64(e.queue.Len()))
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("panic in dispatch loop: %v", r)
				}
			}()
			e.dispatchOne(ctx, item)
		}()
	}
}

// dispatchOne runs one full cycle of spec.md §4.6 steps 2-6 for a single
// dequeued item.
func (e *Engine) dispatchOne(ctx context.Context, item dispatch.EnqueuedMessage) {
	senderID, items := e.senderIdentity(item.Sender)

	msg := item.Message

	if e.opts.AppInterceptor != nil {
		ictx := interceptor.NewContext(senderID, items, msg)

		if e.metrics != nil {
			e.metrics.MessagesIntercepted.Inc()
		}

		if err := e.opts.AppInterceptor.Intercept(ctx, ictx); err != nil {
			e.log.WithError(err).WithField("client_id", senderID).Error("application message interceptor fault")
		}

		if ictx.CloseConnection && item.Sender != nil {
			go func(c *connection.Connection) {
				_ = c.Stop(ctx, e.opts.DefaultCommunicationTimeout, false)
			}(item.Sender)
		}

		if ictx.ApplicationMessage == nil || !ictx.AcceptPublish {
			if e.metrics != nil {
				reason := "interceptor_veto"
				if ictx.ApplicationMessage == nil {
					reason = "nil_message"
				}
				e.metrics.MessagesDropped.WithLabelValues(reason).Inc()
			}
			return
		}

		msg = ictx.ApplicationMessage
	}

	e.notifyApplicationMessageReceived(senderID, msg)

	if msg.Retain {
		e.retained.Store(senderID, msg)
		if e.metrics != nil {
			e.metrics.MessagesRetained.Inc()
		}
	}

	subscribed := e.fanOut(msg, senderID)

	if subscribed == 0 && e.opts.UndeliveredInterceptor != nil {
		ictx := interceptor.NewContext(senderID, items, msg)
		if err := e.opts.UndeliveredInterceptor.Intercept(ctx, ictx); err != nil {
			e.log.WithError(err).WithField("client_id", senderID).Error("undelivered message interceptor fault")
		}
	}

	if e.metrics != nil {
		if subscribed == 0 {
			e.metrics.UndeliveredMessages.Inc()
		}
	}
}

// fanOut is §4.6 step 5: snapshot the Session Registry and enqueue msg into
// every session, returning the number that reported subscribed=true.
func (e *Engine) fanOut(msg *packet.Message, senderID string) int {
	subscribed := 0

	for _, sess := range e.sessions.Snapshot() {
		isSubscribed, _ := sess.Enqueue(msg, senderID, false)
		if isSubscribed {
			subscribed++
			if e.metrics != nil {
				e.metrics.FanoutDeliveries.Inc()
			}
		}
	}

	return subscribed
}

// senderIdentity resolves the (sender_client_id, session_items) pair §4.6
// step 2 describes: options.client_id + ServerSessionItems for a
// server-originated message, or the sender connection's own identity.
func (e *Engine) senderIdentity(sender *connection.Connection) (string, map[string]any) {
	if sender == nil {
		return e.opts.ClientID, e.serverSessionItems()
	}
	return sender.ClientID, sender.Session.Items()
}
