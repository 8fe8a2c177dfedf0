// Package retained implements the retained-message store spec.md §1 treats
// as an external collaborator: the dispatch loop (C6 step 4) hands it every
// message whose retain flag is set.
package retained

import (
	"sync"

	"github.com/qingcloudhx/mqttcore/packet"
)

// entry pairs a retained message with the client id that published it. The
// store itself is keyed by topic; the sender id (C6 step 4) is recorded
// alongside each message.
type entry struct {
	senderClientID string
	message        *packet.Message
}

// Store is the in-memory retained-message store, grounded on the teacher
// MemoryBackend's StoreRetained/ClearRetained/QueueRetained trio.
type Store struct {
	mu    sync.RWMutex
	byTop map[string]entry
}

// NewStore creates an empty retained-message store.
func NewStore() *Store {
	return &Store{byTop: make(map[string]entry)}
}

// Store records msg as the retained message for its topic, together with
// senderClientID (empty for a server-originated publish). An empty payload
// clears any existing retained message for the topic, matching standard
// MQTT retain semantics.
func (s *Store) Store(senderClientID string, msg *packet.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msg.Payload) == 0 {
		delete(s.byTop, msg.Topic)
		return
	}

	s.byTop[msg.Topic] = entry{senderClientID: senderClientID, message: msg.Copy()}
}

// Clear removes any retained message for topic.
func (s *Store) Clear(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTop, topic)
}

// Matching returns a copy of every retained message whose topic satisfies
// filter, for delivery to a freshly subscribing session.
func (s *Store) Matching(filter string, matches func(filter, topic string) bool) []*packet.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*packet.Message
	for topic, e := range s.byTop {
		if matches(filter, topic) {
			out = append(out, e.message.Copy())
		}
	}
	return out
}

// Len returns the number of topics currently holding a retained message.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTop)
}
