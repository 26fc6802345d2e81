package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/testutil"
)

func newRunningFeed(t *testing.T, buffer int) *Feed {
	t.Helper()
	feed := NewFeed(testutil.NopLogger(), buffer)
	go feed.Run()
	t.Cleanup(feed.Close)
	return feed
}

func receive(t *testing.T, sub *Subscription) model.SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.SessionEvent{}
}

func TestFeedRoutesByUser(t *testing.T) {
	feed := newRunningFeed(t, 4)
	alice := feed.Subscribe("alice")
	bob := feed.Subscribe("bob")

	feed.Publish("alice", model.SessionEvent{Kind: model.EventUserUpdated})

	assert.Equal(t, model.EventUserUpdated, receive(t, alice).Kind)
	select {
	case ev := <-bob.Events():
		t.Fatalf("bob received %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedDeliversToEverySubscriptionOfUser(t *testing.T) {
	feed := newRunningFeed(t, 4)
	first := feed.Subscribe("alice")
	second := feed.Subscribe("alice")
	assert.Equal(t, 2, feed.SubscriptionCount("alice"))

	feed.Publish("alice", model.SessionEvent{Kind: model.EventSignedOut})

	assert.Equal(t, model.EventSignedOut, receive(t, first).Kind)
	assert.Equal(t, model.EventSignedOut, receive(t, second).Kind)
}

func TestFeedSubscribeIsLiveOnReturn(t *testing.T) {
	feed := newRunningFeed(t, 4)

	for i := 1; i <= 20; i++ {
		feed.Subscribe("alice")
		require.Equal(t, i, feed.SubscriptionCount("alice"))
	}
}

func TestFeedPreservesOrder(t *testing.T) {
	feed := newRunningFeed(t, 8)
	sub := feed.Subscribe("alice")

	kinds := []model.SessionEventKind{
		model.EventSignedIn,
		model.EventTokenRefreshed,
		model.EventUserUpdated,
		model.EventSignedOut,
	}
	for _, k := range kinds {
		feed.Publish("alice", model.SessionEvent{Kind: k})
	}

	for _, want := range kinds {
		assert.Equal(t, want, receive(t, sub).Kind)
	}
}

func TestFeedDropsWhenSubscriberBufferFull(t *testing.T) {
	feed := newRunningFeed(t, 1)
	sub := feed.Subscribe("alice")

	feed.Publish("alice", model.SessionEvent{Kind: model.EventSignedIn})
	require.Eventually(t, func() bool { return len(sub.Events()) == 1 }, time.Second, time.Millisecond)

	feed.Publish("alice", model.SessionEvent{Kind: model.EventUserUpdated})
	require.Eventually(t, func() bool { return feed.Dropped() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, model.EventSignedIn, receive(t, sub).Kind)
	select {
	case ev := <-sub.Events():
		t.Fatalf("expected drop, got %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedUnsubscribeClosesChannel(t *testing.T) {
	feed := newRunningFeed(t, 1)
	sub := feed.Subscribe("alice")

	feed.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, feed.SubscriptionCount("alice"))
}

func TestFeedCloseClosesSubscriptions(t *testing.T) {
	feed := NewFeed(testutil.NopLogger(), 1)
	go feed.Run()
	sub := feed.Subscribe("alice")

	feed.Close()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Nil(t, feed.Subscribe("bob"))
	feed.Unsubscribe(sub)
}
