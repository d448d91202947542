// Command chat-tail joins a Twitch chat room and prints the normalized log to
// the terminal. Lines typed on stdin are sent to the room: "/me text" sends an
// action and "/w user text" a whisper.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/chat-tender/bttv"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/metadata"
	"github.com/onnwee/chat-tender/twitchapi"
	"github.com/onnwee/chat-tender/twitchirc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type tailOptions struct {
	channel  string
	readOnly bool
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &tailOptions{}
	cmd := &cobra.Command{
		Use:           "chat-tail [channel]",
		Short:         "Print a Twitch chat room to the terminal",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.channel = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := runTail(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "do not send stdin lines to the room")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print room modes, moderation and emote updates")
	return cmd
}

func runTail(ctx context.Context, opts *tailOptions, in io.Reader, out io.Writer) error {
	_ = godotenv.Load()
	// Session logs go to stderr so they never interleave with the log lines.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.channel != "" {
		cfg.TwitchChannel = strings.TrimPrefix(strings.TrimSpace(opts.channel), "#")
	}
	if err := cfg.ValidateChatReady(); err != nil {
		return err
	}

	var helix metadata.Helix
	if cfg.HelixEnabled() {
		helix = &twitchapi.HelixClient{
			ClientID:       cfg.TwitchClientID,
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		}
	}
	cache := metadata.New(helix, &bttv.Client{})
	fetchers := chat.Fetchers{Metadata: cache}
	if helix != nil {
		fetchers.Clips = cache
		fetchers.EmoteSets = cache
	}

	sink := newConsoleSink(out, opts.verbose)
	session := chat.NewSession(cfg.Credentials(),
		twitchirc.Dialer(twitchirc.WithMaxReconnectInterval(cfg.ChatReconnectMaxInterval)),
		sink,
		chat.WithFetchers(fetchers),
		chat.WithConnectTimeout(cfg.ChatConnectTimeout),
	)
	if err := session.Start(ctx, cfg.TwitchChannel); err != nil {
		return err
	}
	defer session.Stop()

	if !opts.readOnly {
		go readInput(ctx, in, session, sink)
	}
	<-ctx.Done()
	return nil
}

// sender is the part of the session used for outgoing lines.
type sender interface {
	Say(text string) error
	Action(text string) error
	Whisper(recipient, text string) error
}

func readInput(ctx context.Context, in io.Reader, s sender, sink *consoleSink) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := sendLine(s, sc.Text()); err != nil {
			sink.printf("%s\n", noticeStyle.Render("send failed: "+err.Error()))
		}
	}
}

var errWhisperUsage = errors.New("usage: /w <user> <message>")

// sendLine routes one input line to the matching send operation. Blank lines
// are ignored.
func sendLine(s sender, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, "/me "):
		return s.Action(strings.TrimSpace(strings.TrimPrefix(line, "/me ")))
	case strings.HasPrefix(line, "/w "):
		recipient, text, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/w ")), " ")
		if !ok || strings.TrimSpace(text) == "" {
			return errWhisperUsage
		}
		return s.Whisper(recipient, strings.TrimSpace(text))
	default:
		return s.Say(line)
	}
}
