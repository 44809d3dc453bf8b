package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/signaling/wsclient"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/bus"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadClient(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr}
	l := zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger()
	log.Logger = l

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := wsclient.Dial(dialCtx, cfg.RelayURL, cfg.UserID)
	cancel()
	if err != nil {
		l.Fatal().Err(err).Str("relay", cfg.RelayURL).Msg("Failed to connect to relay")
	}
	defer conn.Close()

	provider, err := pion.NewProvider(conn, cfg.ICEServers, cfg.CaptureSupported && cfg.Media == config.MediaPion)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create media provider")
	}
	defer provider.Close()

	events := bus.New()
	history := memory.NewHistoryRepository()
	coordinator := service.NewCoordinator(cfg.UserID, conn, conn, provider, events, service.CoordinatorOptions{
		Logger:       l,
		History:      history,
		DisableCalls: !cfg.CallsEnabled,
	})

	out := os.Stdout
	notifier := service.NewNotifier(events, coordinator, &terminalPresenter{out: out})
	defer notifier.Close()
	printEvents(events, out)

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := coordinator.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("Coordinator stopped")
		}
	}()

	fmt.Fprintf(out, "user %s on channel %s\n", cfg.UserID, cfg.ChannelID)
	lines := readLines(os.Stdin)

	c := &cli{
		out:         out,
		channel:     cfg.ChannelID,
		coordinator: coordinator,
		notifier:    notifier,
		history:     history,
	}

loop:
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			break loop
		case <-conn.Done():
			l.Error().Err(conn.Err()).Msg("Relay connection closed")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := c.run(ctx, line); quit {
				break loop
			}
		}
	}

	stopLoop()
	<-loopDone
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

type cli struct {
	out         io.Writer
	channel     domain.ChannelID
	coordinator *service.Coordinator
	notifier    *service.Notifier
	history     *memory.HistoryRepository
}

func (c *cli) run(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "preview":
		err = c.coordinator.OpenPreview(ctx)
	case "close":
		err = c.coordinator.ClosePreview(ctx)
	case "dial":
		if len(fields) != 2 {
			err = errors.New("usage: dial <user-id>")
			break
		}
		var peer domain.UserID
		peer, err = domain.ParseUserID(fields[1])
		if err == nil {
			err = c.coordinator.Dial(ctx, c.channel, peer)
		}
	case "answer", "reject":
		pending, ok := c.notifier.Pending()
		if !ok {
			err = service.ErrNoIncomingCall
			break
		}
		if fields[0] == "answer" {
			err = c.notifier.Answer(ctx, pending.Peer)
		} else {
			err = c.notifier.Reject(ctx, pending.Peer)
		}
	case "hangup":
		err = c.coordinator.Hangup(ctx)
	case "mute":
		err = c.coordinator.ToggleMute(ctx)
	case "video":
		err = c.coordinator.ToggleVideo(ctx)
	case "state":
		s := c.coordinator.State()
		fmt.Fprintf(c.out, "phase=%s role=%s peer=%s muted=%t paused=%t last_error=%s\n",
			s.Phase, s.Role, s.RemoteUserID, s.Muted, s.Paused, s.LastError)
	case "history":
		var records []domain.CallRecord
		records, err = c.history.List(ctx, 10)
		for _, r := range records {
			fmt.Fprintf(c.out, "%s %s %s outcome=%s connected=%t duration=%s\n",
				r.StartedAt.Format(time.TimeOnly), r.Role, r.Peer, r.Outcome, r.Connected, r.Duration().Round(time.Second))
		}
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q (preview, close, dial, answer, reject, hangup, mute, video, state, history, quit)", fields[0])
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

type terminalPresenter struct {
	out io.Writer
}

func (p *terminalPresenter) ShowIncoming(ev domain.Event) {
	fmt.Fprintf(p.out, "\nincoming call from %s (answer / reject)\n", ev.Peer)
}

func (p *terminalPresenter) ShowNotSupported(ev domain.Event) {
	fmt.Fprintf(p.out, "\n%s tried to call you, but video calls are not supported here (%s)\n", ev.Peer, ev.Reason)
}

func (p *terminalPresenter) Dismiss(ev domain.Event) {
	fmt.Fprintf(p.out, "\nincoming call from %s dismissed\n", ev.Peer)
}

func printEvents(events *bus.Bus, out io.Writer) {
	show := func(ev domain.Event) {
		if ev.Reason != domain.ErrNone {
			fmt.Fprintf(out, "\n[%s] peer=%s reason=%s\n", ev.Kind, ev.Peer, ev.Reason)
			return
		}
		fmt.Fprintf(out, "\n[%s] peer=%s\n", ev.Kind, ev.Peer)
	}
	for _, kind := range []domain.EventKind{
		domain.EventIntentToCall,
		domain.EventCancelled,
		domain.EventRejected,
		domain.EventConnected,
		domain.EventNotSupported,
		domain.EventFailed,
		domain.EventEnded,
		domain.EventPreviewFailed,
	} {
		events.Subscribe(kind, show)
	}
}
