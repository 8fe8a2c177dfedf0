// Package session implements the Session Registry (C1) of spec.md §4.1: the
// per-client_id persistent state that survives a single TCP attachment, and
// the registry that owns it.
package session

import (
	"sync"
	"time"

	"github.com/qingcloudhx/mqttcore/packet"
	"github.com/qingcloudhx/mqttcore/registry"
)

// DefaultQueueSize is the default capacity of a Session's outbound queue,
// matching the teacher MemoryBackend's SessionQueueSize default.
const DefaultQueueSize = 100

// subscription is one entry of a Session's subscription set.
type subscription struct {
	filter string
	qos    packet.QOS
}

// Session is the persistent per-client_id state described by spec.md §3.
// Ownership is exclusively held by the Registry that installed it; a
// Connection only ever holds a non-owning reference to one.
type Session struct {
	// ClientID is the persistent client_id this session belongs to.
	ClientID string

	// CreatedAt backs get_session_status (SPEC_FULL.md). lastTakeover
	// records the last reconnect that reused this session; it is not part
	// of Status.
	CreatedAt    time.Time
	lastTakeover time.Time

	// IDs hands out packet identifiers for this session's outbound QOS 1/2
	// flows.
	IDs *IDCounter

	mu    sync.Mutex
	items map[string]any
	subs  map[string]subscription
	will  *packet.Message
	queue chan *packet.Message
}

// New creates a Session seeded with items (the validator-populated
// session_items of spec.md §3; may be nil).
func New(clientID string, items map[string]any, queueSize int) *Session {
	if items == nil {
		items = make(map[string]any)
	}

	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Session{
		ClientID:  clientID,
		CreatedAt: time.Now(),
		IDs:       NewIDCounter(),
		items:     items,
		subs:      make(map[string]subscription),
		queue:     make(chan *packet.Message, queueSize),
	}
}

// Items returns the session's scratch-space map. The map identity is stable
// across the session's lifetime (spec.md §3 invariant).
func (s *Session) Items() map[string]any {
	return s.items
}

// SetWill stores the session's last-will message (SPEC_FULL.md §4.3
// addition). A nil will clears it.
func (s *Session) SetWill(will *packet.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.will = will
}

// Will returns the stored last-will message, if any.
func (s *Session) Will() *packet.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.will
}

// MarkTakeover records that this session just survived a reconnect.
func (s *Session) MarkTakeover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTakeover = time.Now()
}

// Subscribe adds filter at qos to the session's subscription set,
// overwriting any existing entry for the same filter (C4.9 admin surface).
func (s *Session) Subscribe(filter string, qos packet.QOS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[filter] = subscription{filter: filter, qos: qos}
}

// Unsubscribe removes filter from the subscription set. A missing filter is
// not an error.
func (s *Session) Unsubscribe(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, filter)
}

// Enqueue delivers msg to the session's outbound queue if any subscription
// matches msg.Topic, and reports whether the session was subscribed — the
// `enqueue(message, sender_id, is_retained)` contract spec.md §1/§4.6 step 5
// describes. senderID and isRetained are carried through for session-side
// bookkeeping (e.g. loop-suppression, retained-delivery framing); this
// opaque session object does not currently use either, but the fan-out
// caller must still thread them per the spec's call shape. A full queue
// drops the message but still reports subscribed=true: the session was
// interested, delivery capacity is a separate concern.
func (s *Session) Enqueue(msg *packet.Message, senderID string, isRetained bool) (subscribed bool, delivered bool) {
	s.mu.Lock()
	matched := false
	for _, sub := range s.subs {
		if matches(sub.filter, msg.Topic) {
			matched = true
			break
		}
	}
	s.mu.Unlock()

	if !matched {
		return false, false
	}

	select {
	case s.queue <- msg:
		return true, true
	default:
		return true, false
	}
}

// Outbox exposes the channel a Connection drains to forward PUBLISH packets
// to its peer.
func (s *Session) Outbox() <-chan *packet.Message {
	return s.queue
}

// FillStatus returns the outbound queue's occupancy as a fraction in [0,1],
// the `fill_status` spec.md §1 names.
func (s *Session) FillStatus() float64 {
	return float64(len(s.queue)) / float64(cap(s.queue))
}

// SubscriptionCount returns the number of active subscriptions, used by
// get_session_status.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Status is a point-in-time snapshot for the admin surface's
// get_session_status (SPEC_FULL.md §6 addition).
type Status struct {
	ClientID      string
	CreatedAt     time.Time
	ItemCount     int
	Subscriptions int
	HasWill       bool
	FillStatus    float64
}

// Snapshot returns the session's current Status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		ClientID:      s.ClientID,
		CreatedAt:     s.CreatedAt,
		ItemCount:     len(s.items),
		Subscriptions: len(s.subs),
		HasWill:       s.will != nil,
		FillStatus:    s.FillStatus(),
	}
}

// Registry is the Session Registry, C1 of spec.md §4.1.
type Registry struct {
	reg *registry.Registry[*Session]
}

// NewRegistry creates an empty Session Registry.
func NewRegistry() *Registry {
	return &Registry{reg: registry.New[*Session]()}
}

// GetOrInstall returns the existing Session for clientID, or installs and
// returns the one produced by factory.
func (r *Registry) GetOrInstall(clientID string, factory func() *Session) (*Session, bool) {
	return r.reg.GetOrInstall(clientID, factory)
}

// Replace installs newSession unconditionally, returning whatever session
// previously occupied clientID (discarded by the caller per spec.md §4.4).
func (r *Registry) Replace(clientID string, newSession *Session) (*Session, bool) {
	return r.reg.Replace(clientID, newSession)
}

// TryRemove removes and returns the Session for clientID, if any.
func (r *Registry) TryRemove(clientID string) (*Session, bool) {
	return r.reg.TryRemove(clientID)
}

// Get returns the Session for clientID without mutating the registry.
func (r *Registry) Get(clientID string) (*Session, bool) {
	return r.reg.Get(clientID)
}

// Snapshot returns every Session present at some point during the call (see
// registry.Registry.Snapshot for the exact consistency guarantee).
func (r *Registry) Snapshot() []*Session {
	return r.reg.Snapshot()
}

// Len returns the approximate number of installed sessions.
func (r *Registry) Len() int {
	return r.reg.Len()
}
