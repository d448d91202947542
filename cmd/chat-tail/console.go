package main

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/chat-tender/chat"
)

var (
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("183")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	cheerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("216")).Bold(true)
	clipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))

	tagPattern = regexp.MustCompile(`<[^>]+>`)
)

// consoleSink prints the chat log as it is produced. It keeps no history.
type consoleSink struct {
	mu       sync.Mutex
	out      io.Writer
	verbose  bool
	lastMode chat.RoomConfiguration
}

func newConsoleSink(out io.Writer, verbose bool) *consoleSink {
	return &consoleSink{out: out, verbose: verbose}
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *consoleSink) AppendEntry(e chat.Entry) {
	c.printf("%s\n", renderEntry(e))
}

func (c *consoleSink) PatchEntry(id string, p chat.EntryPatch) {
	for _, clip := range p.Clips {
		c.printf("  %s\n", clipStyle.Render(fmt.Sprintf("clip: %s by %s (%d views)", clip.Title, clip.CreatorName, clip.ViewCount)))
	}
}

func (c *consoleSink) RemoveEntries(ids []string) {
	if c.verbose {
		c.printf("%s\n", noticeStyle.Render(fmt.Sprintf("(%d messages removed)", len(ids))))
	}
}

func (c *consoleSink) SetRoomConfiguration(cfg chat.RoomConfiguration) {
	c.mu.Lock()
	changed := c.lastMode != cfg
	c.lastMode = cfg
	c.mu.Unlock()
	if changed && c.verbose {
		c.printf("%s\n", statusStyle.Render("room: "+describeRoom(cfg)))
	}
}

func (c *consoleSink) SetConnectionStatus(s chat.ConnectionStatus) {
	c.printf("%s\n", statusStyle.Render("-- "+s.String()+" --"))
}

func (c *consoleSink) SetModeratorStatus(mod bool) {
	if c.verbose {
		c.printf("%s\n", statusStyle.Render(fmt.Sprintf("moderator: %t", mod)))
	}
}

func (c *consoleSink) RecordChatterActivity(chat.Chatter, string) {}

func (c *consoleSink) SetEmoteSets(provider string, codes []string) {
	if c.verbose {
		c.printf("%s\n", statusStyle.Render(fmt.Sprintf("%s emotes: %d", provider, len(codes))))
	}
}

func (c *consoleSink) Reset() {
	c.mu.Lock()
	c.lastMode = chat.RoomConfiguration{}
	c.mu.Unlock()
}

func renderEntry(e chat.Entry) string {
	stamp := timeStyle.Render(e.Time.Local().Format(time.TimeOnly))
	text := e.Text
	if e.HTML {
		text = tagPattern.ReplaceAllString(text, "")
	}
	switch e.Kind {
	case chat.KindChat:
		return fmt.Sprintf("%s %s: %s", stamp, renderName(e.User), text)
	case chat.KindAction:
		return fmt.Sprintf("%s * %s %s", stamp, renderName(e.User), renderColored(e.User, text))
	case chat.KindCheer:
		return fmt.Sprintf("%s %s %s: %s", stamp, renderName(e.User), cheerStyle.Render(fmt.Sprintf("cheered %d", e.Bits)), text)
	case chat.KindWhisper:
		return fmt.Sprintf("%s %s %s", stamp, renderName(e.User), noticeStyle.Render("whispers: ")+text)
	case chat.KindNotification:
		line := fmt.Sprintf("%s %s", stamp, eventStyle.Render(text))
		if e.SubMessage != "" {
			line += "\n  " + e.SubMessage
		}
		return line
	default:
		return fmt.Sprintf("%s %s", stamp, noticeStyle.Render(text))
	}
}

func renderName(u *chat.Chatter) string {
	if u == nil {
		return "?"
	}
	name := u.DisplayName
	if name == "" {
		name = u.Name
	}
	if u.IsMod {
		name = "@" + name
	}
	return renderColored(u, lipgloss.NewStyle().Bold(true).Render(name))
}

func renderColored(u *chat.Chatter, s string) string {
	if u == nil || u.Color == "" {
		return s
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(u.Color)).Render(s)
}

func describeRoom(cfg chat.RoomConfiguration) string {
	var modes []string
	if cfg.FollowersOnly {
		modes = append(modes, "followers-only")
	}
	if cfg.EmoteOnly {
		modes = append(modes, "emote-only")
	}
	if cfg.R9K {
		modes = append(modes, "r9k")
	}
	if cfg.SubscribersOnly {
		modes = append(modes, "subscribers-only")
	}
	if cfg.SlowModeSeconds > 0 {
		modes = append(modes, fmt.Sprintf("slow %ds", cfg.SlowModeSeconds))
	}
	if len(modes) == 0 {
		return "normal"
	}
	return strings.Join(modes, ", ")
}
