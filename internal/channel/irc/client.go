// Package irc implements the IRC dispatch channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/hotline/internal/channel"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/soyeahso/hotline/internal/version"
)

// maxLineLen keeps a PRIVMSG under the 512 byte IRC line limit once the
// prefix and target are added.
const maxLineLen = 400

// Channel implements channel.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	ctx     context.Context
	handler channel.CommandHandler
	running bool
	lastErr string
}

var _ channel.Channel = (*Channel)(nil)

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
		ctx: context.Background(),
	}
}

func (c *Channel) ID() string { return "irc" }

// OnCommand installs the operator command handler.
func (c *Channel) OnCommand(handler channel.CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() channel.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return channel.Status{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (c *Channel) gircConfig() girc.Config {
	gc := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "Hotline dispatch desk",
		SSL:     c.cfg.UseTLS,
		Version: "Hotline/" + version.Version,
	}
	if c.cfg.UseTLS {
		gc.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gc.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gc.ServerPass = c.cfg.Password
	}
	return gc
}

// Start connects to the IRC server and processes commands until ctx is
// cancelled or the connection ends.
func (c *Channel) Start(ctx context.Context) error {
	client := girc.New(c.gircConfig())

	c.mu.Lock()
	c.client = client
	c.ctx = ctx
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()
	c.registerHandlers(client)

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	// Connect blocks
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("Hotline dispatch desk shutting down")
	}
	c.running = false
	return nil
}

// Announce posts text to every configured room.
func (c *Channel) Announce(ctx context.Context, text string) error {
	for _, room := range c.cfg.Channels {
		if err := c.send(room, text); err != nil {
			return err
		}
	}
	return nil
}

// send delivers a message to a room or nick, one PRIVMSG per line.
func (c *Channel) send(target, body string) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if target == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(body, maxLineLen)
	for _, line := range lines {
		client.Cmd.Message(target, line)
	}
	c.log.Debug().Str("to", target).Int("lines", len(lines)).Msg("sent IRC message")
	return nil
}

func (c *Channel) registerHandlers(client *girc.Client) {
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, room := range c.cfg.Channels {
		c.log.Info().Str("channel", room).Msg("joining channel")
		client.Cmd.Join(room)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// opOnly returns whether status changes are restricted to channel
// operators. Defaults to true when not explicitly configured.
func (c *Channel) opOnly() bool {
	if c.cfg.OpOnly == nil {
		return true
	}
	return *c.cfg.OpOnly
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || e.Source.Name == client.GetNick() {
		return
	}
	// Commands are only taken in rooms, where other operators see them.
	if !e.IsFromChannel() {
		c.log.Debug().Str("nick", e.Source.Name).Msg("ignoring direct message")
		return
	}
	room := e.Params[0]
	privileged := !c.opOnly() || isChannelOp(client, e.Source.Name, room)
	c.dispatch(e.Source.Name, room, e.Last(), privileged)
}

// dispatch runs a command line from a room and posts the reply there.
func (c *Channel) dispatch(from, room, body string, privileged bool) {
	text, ok := parseCommand(body)
	if !ok {
		return
	}

	c.mu.RLock()
	handler, ctx := c.handler, c.ctx
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	reply := handler(ctx, channel.Command{
		ChannelID:  c.ID(),
		From:       from,
		Room:       room,
		Privileged: privileged,
		Text:       text,
	})
	if reply == "" {
		return
	}
	if err := c.send(room, reply); err != nil {
		c.log.Warn().Err(err).Str("channel", room).Msg("failed to reply")
	}
}

// isChannelOp checks whether nick has operator (or higher) permissions in
// room.
func isChannelOp(client *girc.Client, nick, room string) bool {
	user := client.LookupUser(nick)
	if user == nil {
		return false
	}
	perms, ok := user.Perms.Lookup(room)
	if !ok {
		return false
	}
	return perms.IsAdmin()
}

// parseCommand strips the command prefix. Lines without it are chatter.
func parseCommand(body string) (string, bool) {
	body = strings.TrimSpace(body)
	text, ok := strings.CutPrefix(body, channel.CommandPrefix)
	if !ok {
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// splitMessage breaks a message into lines suitable for IRC. Each newline
// produces a separate line because PRIVMSG does not support embedded
// newlines; lines longer than maxLen are further split at the byte
// boundary. Blank lines are dropped.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
