package session

import (
	"math"
	"sync"

	"github.com/qingcloudhx/mqttcore/packet"
)

// IDCounter hands out sequential, wrapping packet.IDs for a Session's
// outbound QOS 1/2 flows. Adapted from the teacher's session.IDCounter —
// same wrap-at-MaxUint16-back-to-1 behaviour, now guarded by a mutex since a
// Session may be shared by concurrent dispatch and admin calls.
type IDCounter struct {
	mutex sync.Mutex
	next  packet.ID
}

// NewIDCounter creates a counter that starts at 1.
func NewIDCounter() *IDCounter {
	return &IDCounter{next: 1}
}

// NewIDCounterWithNext creates a counter whose first NextID() call returns
// next.
func NewIDCounterWithNext(next uint16) *IDCounter {
	return &IDCounter{next: packet.ID(next)}
}

// NextID returns the next id, wrapping from math.MaxUint16 back to 1.
func (c *IDCounter) NextID() packet.ID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	id := c.next

	if c.next == math.MaxUint16 {
		c.next = 1
	} else {
		c.next++
	}

	return id
}

// Reset sets the counter back to 1.
func (c *IDCounter) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.next = 1
}
