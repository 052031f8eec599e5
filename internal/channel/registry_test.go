package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/hotline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for Channel.
type mockChannel struct {
	id string

	mu          sync.Mutex
	started     bool
	stopped     bool
	announced   []string
	handler     CommandHandler
	startErr    error
	stopErr     error
	announceErr error
}

func (m *mockChannel) ID() string { return m.id }

func (m *mockChannel) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return m.startErr
}

func (m *mockChannel) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

func (m *mockChannel) Announce(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announced = append(m.announced, text)
	return m.announceErr
}

func (m *mockChannel) OnCommand(handler CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *mockChannel) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockChannel) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.announced...)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "test"})

	got, ok := reg.Get("test")
	require.True(t, ok)
	assert.Equal(t, "test", got.ID())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_ListAndCount(t *testing.T) {
	reg := NewRegistry(testLogger())
	assert.Equal(t, 0, reg.Count())

	reg.Register(&mockChannel{id: "irc"})
	reg.Register(&mockChannel{id: "pager"})

	assert.ElementsMatch(t, []string{"irc", "pager"}, reg.List())
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_StatusFallback(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "irc"})

	statuses := reg.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, Status{ChannelID: "irc", Running: true}, statuses[0])
}

func TestRegistry_StartAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	ok := &mockChannel{id: "irc"}
	broken := &mockChannel{id: "broken", startErr: assert.AnError}
	reg.Register(ok)
	reg.Register(broken)

	// StartAll launches goroutines; errors are logged.
	reg.StartAll(context.Background())
	assert.Eventually(t, ok.isStarted, time.Second, 10*time.Millisecond)
	assert.Eventually(t, broken.isStarted, time.Second, 10*time.Millisecond)
}

func TestRegistry_StopAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch1 := &mockChannel{id: "irc"}
	ch2 := &mockChannel{id: "pager", stopErr: assert.AnError}
	reg.Register(ch1)
	reg.Register(ch2)

	reg.StopAll(context.Background())
	assert.True(t, ch1.stopped)
	assert.True(t, ch2.stopped)
}

func TestRegistry_Announce(t *testing.T) {
	reg := NewRegistry(testLogger())
	ok := &mockChannel{id: "irc"}
	failing := &mockChannel{id: "pager", announceErr: assert.AnError}
	reg.Register(ok)
	reg.Register(failing)

	err := reg.Announce(context.Background(), "[fire] new case c1 from user u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "pager")
	assert.Equal(t, []string{"[fire] new case c1 from user u1"}, ok.messages())
	assert.Equal(t, []string{"[fire] new case c1 from user u1"}, failing.messages())
}

func TestRegistry_Route(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch1 := &mockChannel{id: "irc"}
	ch2 := &mockChannel{id: "pager"}
	reg.Register(ch1)
	reg.Register(ch2)

	reg.Route(func(context.Context, Command) string { return "pong" })
	require.NotNil(t, ch1.handler)
	require.NotNil(t, ch2.handler)
	assert.Equal(t, "pong", ch2.handler(context.Background(), Command{Text: "ping"}))
}
