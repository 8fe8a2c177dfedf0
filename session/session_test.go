package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qingcloudhx/mqttcore/packet"
)

func TestSessionEnqueueRequiresSubscription(t *testing.T) {
	s := New("alice", nil, 4)

	subscribed, delivered := s.Enqueue(&packet.Message{Topic: "news"}, "alice", false)
	assert.False(t, subscribed)
	assert.False(t, delivered)

	s.Subscribe("news", packet.QOSAtMostOnce)

	subscribed, delivered = s.Enqueue(&packet.Message{Topic: "news"}, "alice", false)
	assert.True(t, subscribed)
	assert.True(t, delivered)

	select {
	case msg := <-s.Outbox():
		assert.Equal(t, "news", msg.Topic)
	default:
		t.Fatal("expected a queued message")
	}
}

func TestSessionEnqueueWildcard(t *testing.T) {
	s := New("alice", nil, 4)
	s.Subscribe("t/#", packet.QOSAtMostOnce)

	subscribed, _ := s.Enqueue(&packet.Message{Topic: "t/a/b"}, "alice", false)
	assert.True(t, subscribed)

	subscribed, _ = s.Enqueue(&packet.Message{Topic: "other"}, "alice", false)
	assert.False(t, subscribed)
}

func TestSessionUnsubscribeStopsMatching(t *testing.T) {
	s := New("alice", nil, 4)
	s.Subscribe("t/#", packet.QOSAtMostOnce)
	s.Unsubscribe("t/#")

	subscribed, _ := s.Enqueue(&packet.Message{Topic: "t/a"}, "alice", false)
	assert.False(t, subscribed)
}

func TestSessionEnqueueFullQueueStillReportsSubscribed(t *testing.T) {
	s := New("alice", nil, 1)
	s.Subscribe("news", packet.QOSAtMostOnce)

	subscribed, delivered := s.Enqueue(&packet.Message{Topic: "news"}, "alice", false)
	require.True(t, subscribed)
	require.True(t, delivered)

	subscribed, delivered = s.Enqueue(&packet.Message{Topic: "news"}, "alice", false)
	assert.True(t, subscribed)
	assert.False(t, delivered)
}

func TestSessionItemsIdentityPreserved(t *testing.T) {
	seed := map[string]any{"k": "v"}
	s := New("alice", seed, 4)

	items := s.Items()
	items["k2"] = "v2"

	assert.Equal(t, "v2", s.Items()["k2"])
}

func TestRegistryReplaceDiscardsOldSubscriptions(t *testing.T) {
	r := NewRegistry()

	old, _ := r.GetOrInstall("alice", func() *Session {
		return New("alice", nil, 4)
	})
	old.Subscribe("t/#", packet.QOSAtMostOnce)

	fresh := New("alice", nil, 4)
	prev, hadOld := r.Replace("alice", fresh)
	require.True(t, hadOld)
	assert.Same(t, old, prev)

	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	subscribed, _ := got.Enqueue(&packet.Message{Topic: "t/a"}, "alice", false)
	assert.False(t, subscribed, "fresh session from a clean-session reconnect must not inherit old subscriptions")
}

func TestMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"news", "news", true},
		{"news", "weather", false},
		{"news/+", "news/sports", true},
		{"news/+", "news/sports/extra", false},
		{"news/#", "news/sports/extra", true},
		{"#", "anything/at/all", true},
		{"+/+", "a/b", true},
		{"+/+", "a/b/c", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, matches(c.filter, c.topic), "filter=%q topic=%q", c.filter, c.topic)
	}
}
