package irc

import (
	"context"
	"strings"
	"testing"

	"github.com/soyeahso/hotline/internal/channel"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func boolPtr(b bool) *bool { return &b }

func TestNew(t *testing.T) {
	cfg := config.IRCConfig{
		Server:   "irc.libera.chat",
		Port:     6697,
		Nick:     "hotline",
		Channels: []string{"#dispatch"},
		UseTLS:   true,
	}
	ch := New(cfg, testLogger())
	assert.Equal(t, "irc", ch.ID())
}

func TestStatus_NotStarted(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	status := ch.Status()

	assert.Equal(t, "irc", status.ChannelID)
	assert.False(t, status.Connected)
	assert.False(t, status.Running)
	assert.Empty(t, status.LastError)
}

func TestAnnounce_NotConnected(t *testing.T) {
	ch := New(config.IRCConfig{Channels: []string{"#dispatch"}}, testLogger())
	err := ch.Announce(context.Background(), "[fire] new case c1 from user u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestAnnounce_NoRooms(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	assert.NoError(t, ch.Announce(context.Background(), "nothing to do"))
}

func TestStop_NotStarted(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	assert.NoError(t, ch.Stop(context.Background()))
}

func TestDefaultPorts(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.IRCConfig
		want int
	}{
		{"TLS defaults to 6697", config.IRCConfig{Server: "irc.test", Nick: "bot", UseTLS: true}, 6697},
		{"plain defaults to 6667", config.IRCConfig{Server: "irc.test", Nick: "bot"}, 6667},
		{"explicit port wins", config.IRCConfig{Server: "irc.test", Nick: "bot", Port: 7000, UseTLS: true}, 7000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := New(tt.cfg, testLogger())
			assert.Equal(t, tt.want, ch.port())
		})
	}
}

func TestGircConfig(t *testing.T) {
	ch := New(config.IRCConfig{Server: "irc.test", Nick: "bot", Password: "secret"}, testLogger())
	gc := ch.gircConfig()
	assert.Equal(t, "secret", gc.ServerPass)
	assert.Nil(t, gc.SASL)
	assert.Nil(t, gc.TLSConfig)

	ch = New(config.IRCConfig{Server: "irc.test", Nick: "bot", Password: "secret", SASL: true, UseTLS: true}, testLogger())
	gc = ch.gircConfig()
	assert.Empty(t, gc.ServerPass)
	assert.NotNil(t, gc.SASL)
	require.NotNil(t, gc.TLSConfig)
	assert.Equal(t, "irc.test", gc.TLSConfig.ServerName)
	assert.True(t, gc.SSL)
}

func TestOpOnlyDefault(t *testing.T) {
	assert.True(t, New(config.IRCConfig{}, testLogger()).opOnly())
	assert.False(t, New(config.IRCConfig{OpOnly: boolPtr(false)}, testLogger()).opOnly())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"!cases fire", "cases fire", true},
		{"  ! help  ", "help", true},
		{"!", "", false},
		{"hello there", "", false},
		{"cases !fire", "", false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDispatch(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())

	var got []channel.Command
	ch.OnCommand(func(_ context.Context, cmd channel.Command) string {
		got = append(got, cmd)
		return "ok"
	})

	// Not connected, so the reply is dropped with a warning.
	ch.dispatch("alice", "#dispatch", "!case fire c1", true)
	ch.dispatch("bob", "#dispatch", "just chatting", false)

	require.Len(t, got, 1)
	assert.Equal(t, channel.Command{
		ChannelID:  "irc",
		From:       "alice",
		Room:       "#dispatch",
		Privileged: true,
		Text:       "case fire c1",
	}, got[0])
}

func TestDispatch_NoHandler(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	assert.NotPanics(t, func() { ch.dispatch("alice", "#dispatch", "!help", false) })
}

func TestSplitMessage_Short(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, splitMessage("hello world", 400))
}

func TestSplitMessage_MultiLine(t *testing.T) {
	result := splitMessage("line one\n\nline two\n", 400)
	assert.Equal(t, []string{"line one", "line two"}, result)
}

func TestSplitMessage_LongLine(t *testing.T) {
	result := splitMessage("abcdefghijklmnopqrstuvwxyz", 10)
	assert.Equal(t, []string{"abcdefghij", "klmnopqrst", "uvwxyz"}, result)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz", strings.Join(result, ""))
}
