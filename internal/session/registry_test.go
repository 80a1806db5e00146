package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/session"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRecorder struct {
	mu        sync.Mutex
	mounted   int
	unmounted map[string]int
}

func (r *stubRecorder) RecordSessionMounted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounted++
}

func (r *stubRecorder) RecordSessionUnmounted(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unmounted == nil {
		r.unmounted = make(map[string]int)
	}
	r.unmounted[reason]++
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

func TestRegistry_MountCreatesEmptyCart(t *testing.T) {
	registry := session.NewRegistry(session.WithLogger(loggerForTests()))

	s, err := registry.Mount()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.True(t, s.Store.Snapshot().IsEmpty())
	require.Equal(t, 1, registry.Count())

	other, err := registry.Mount()
	require.NoError(t, err)
	require.NotEqual(t, s.ID, other.ID)
	require.NotSame(t, s.Store, other.Store)
}

func TestRegistry_LookupUnknownSession(t *testing.T) {
	registry := session.NewRegistry(session.WithLogger(loggerForTests()))

	_, err := registry.Lookup("missing")
	require.ErrorIs(t, err, domain.ErrNoCartScope)

	_, err = registry.Lookup("")
	require.ErrorIs(t, err, domain.ErrNoCartScope)
	require.ErrorIs(t, err, domain.ErrSessionIDRequired)
}

func TestRegistry_EstablishProvidesScope(t *testing.T) {
	registry := session.NewRegistry(session.WithLogger(loggerForTests()))
	s, err := registry.Mount()
	require.NoError(t, err)

	ctx, err := registry.Establish(context.Background(), s.ID)
	require.NoError(t, err)

	store, err := cart.FromContext(ctx)
	require.NoError(t, err)
	require.Same(t, s.Store, store)

	_, err = registry.Establish(context.Background(), "missing")
	require.True(t, domain.IsScopeError(err))
}

func TestRegistry_UnmountDestroysCart(t *testing.T) {
	recorder := &stubRecorder{}
	registry := session.NewRegistry(session.WithLogger(loggerForTests()), session.WithRecorder(recorder))
	s, err := registry.Mount()
	require.NoError(t, err)
	s.Store.Add(domain.CartLine{ID: 1, Name: "A", Price: 1, Quantity: 1})

	var last cart.Change
	unsubscribe, err := registry.Subscribe(s.ID, func(change cart.Change) { last = change })
	require.NoError(t, err)
	defer unsubscribe()

	require.True(t, registry.Unmount(s.ID))
	require.False(t, registry.Unmount(s.ID))

	require.Equal(t, domain.CartOpClose, last.Op)
	require.True(t, last.Snapshot.IsEmpty())
	require.True(t, s.Store.Snapshot().IsEmpty())
	require.Equal(t, 0, registry.Count())

	_, err = registry.Lookup(s.ID)
	require.ErrorIs(t, err, domain.ErrNoCartScope)
	require.Equal(t, 1, recorder.mounted)
	require.Equal(t, 1, recorder.unmounted[session.ReasonClosed])
}

func TestRegistry_SubscribeUnknownSession(t *testing.T) {
	registry := session.NewRegistry(session.WithLogger(loggerForTests()))

	unsubscribe, err := registry.Subscribe("missing", func(cart.Change) {})
	require.Nil(t, unsubscribe)
	require.ErrorIs(t, err, domain.ErrNoCartScope)
}

func TestRegistry_ObserversReceiveSessionID(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	registry := session.NewRegistry(
		session.WithLogger(loggerForTests()),
		session.WithIDGenerator(sequentialIDs()),
		session.WithObserver(func(sessionID string, change cart.Change) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, fmt.Sprintf("%s:%s", sessionID, change.Op))
		}),
	)

	first, err := registry.Mount()
	require.NoError(t, err)
	second, err := registry.Mount()
	require.NoError(t, err)

	first.Store.Add(domain.CartLine{ID: 1, Quantity: 1})
	second.Store.Clear()
	registry.Unmount(first.ID)

	require.Equal(t, []string{"session-1:add", "session-2:clear", "session-1:close"}, seen)
}

func TestRegistry_MountDuplicateID(t *testing.T) {
	registry := session.NewRegistry(
		session.WithLogger(loggerForTests()),
		session.WithIDGenerator(func() string { return "fixed" }),
	)

	_, err := registry.Mount()
	require.NoError(t, err)
	_, err = registry.Mount()
	require.Error(t, err)
	require.Equal(t, 1, registry.Count())
}

func TestRegistry_ExpireIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	recorder := &stubRecorder{}
	registry := session.NewRegistry(
		session.WithLogger(loggerForTests()),
		session.WithClock(clock.Now),
		session.WithRecorder(recorder),
	)

	idle, err := registry.Mount()
	require.NoError(t, err)
	active, err := registry.Mount()
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = registry.Lookup(active.ID)
	require.NoError(t, err)

	expired := registry.ExpireIdle(clock.Now().Add(-5 * time.Minute))
	require.Equal(t, 1, expired)
	require.Equal(t, 1, registry.Count())

	_, err = registry.Lookup(idle.ID)
	require.ErrorIs(t, err, domain.ErrNoCartScope)
	_, err = registry.Lookup(active.ID)
	require.NoError(t, err)
	require.Equal(t, 1, recorder.unmounted[session.ReasonExpired])
}

func TestRegistry_Close(t *testing.T) {
	recorder := &stubRecorder{}
	registry := session.NewRegistry(session.WithLogger(loggerForTests()), session.WithRecorder(recorder))
	s, err := registry.Mount()
	require.NoError(t, err)
	s.Store.Add(domain.CartLine{ID: 1, Quantity: 1})

	registry.Close()
	registry.Close()

	require.True(t, registry.Closed())
	require.Equal(t, 0, registry.Count())
	require.True(t, s.Store.Snapshot().IsEmpty())
	require.Equal(t, 1, recorder.unmounted[session.ReasonShutdown])

	_, err = registry.Mount()
	require.ErrorIs(t, err, domain.ErrRegistryClosed)
}

func TestRegistry_HoldPreventsIdleExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry := session.NewRegistry(session.WithLogger(loggerForTests()), session.WithClock(clock.Now))

	watched, err := registry.Mount()
	require.NoError(t, err)

	release, err := registry.Hold(watched.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.Equal(t, 0, registry.ExpireIdle(clock.Now().Add(-30*time.Minute)))
	require.Equal(t, 1, registry.Count())

	release()
	release()
	require.Equal(t, 0, registry.ExpireIdle(clock.Now().Add(-30*time.Minute)))

	clock.Advance(time.Hour)
	require.Equal(t, 1, registry.ExpireIdle(clock.Now().Add(-30*time.Minute)))
	require.Equal(t, 0, registry.Count())
}

func TestRegistry_HoldUnknownSession(t *testing.T) {
	registry := session.NewRegistry(session.WithLogger(loggerForTests()))

	release, err := registry.Hold("missing")
	require.Nil(t, release)
	require.True(t, domain.IsScopeError(err))

	_, err = registry.Hold("")
	require.ErrorIs(t, err, domain.ErrSessionIDRequired)
}
