package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/interviewroom/go/internal/config"
	"github.com/mcdev12/interviewroom/go/internal/hosthint"
	"github.com/mcdev12/interviewroom/go/internal/relay"
	"github.com/mcdev12/interviewroom/go/internal/session"
)

// client bundles the wired-up handle and store for one CLI run.
type client struct {
	cfg    config.Config
	opts   relay.Options
	handle *relay.Handle
	store  *session.Store
	hints  *hosthint.File
}

// setupClient loads config, builds the transport handle and session
// store, and connects when auto-connect is on.
func setupClient() (*client, error) {
	cfg := config.NewConfigFromEnv()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if relayURL != "" {
		cfg.RelayURL = relayURL
	}

	hintPath := cfg.HostHintPath
	if hintPath == "" {
		hintPath = hosthint.DefaultPath()
	}
	hints := hosthint.NewFile(hintPath)

	handle := relay.NewHandle()
	opts := relay.DefaultOptions()
	opts.WithCredentials = cfg.WithCredentials
	opts.AutoConnect = cfg.AutoConnect
	opts.ReconnectionAttempts = cfg.ReconnectionAttempts
	opts.ReconnectionDelay = cfg.ReconnectionDelay()
	if cfg.WithCredentials && cfg.Cookie != "" {
		opts.Header = http.Header{"Cookie": []string{cfg.Cookie}}
	}

	c := &client{
		cfg:    cfg,
		opts:   opts,
		handle: handle,
		store:  session.NewStore(handle, clockwork.NewRealClock(), hints),
		hints:  hints,
	}

	if opts.AutoConnect {
		if err := handle.Connect(cfg.RelayURL, opts); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// connect is idempotent; commands call it before joining so a deferred
// (non auto-connect) handle still comes up in time.
func (c *client) connect() error {
	return c.handle.Connect(c.cfg.RelayURL, c.opts)
}

// runInteractive drives the session from stdin until interrupted.
// Typed lines update the local answer draft; ".submit" submits it, and
// hosts can ".next" to request the next question.
func (c *client) runInteractive(isHost bool) error {
	defer c.handle.Close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			log.Info().Msg("leaving session")
			c.store.ResetState()
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == ".submit":
				snap := c.store.Snapshot()
				c.store.SubmitAnswer(snap.CurrentAnswer)
			case line == ".next" && isHost:
				c.store.AdvanceQuestion()
			case line == ".state":
				printState(c.store.Snapshot())
			default:
				c.store.SetLocalAnswer(line)
			}
		}
	}
}

func printState(s session.State) {
	var roster []string
	for _, u := range s.UsersInRoom {
		roster = append(roster, u.Username)
	}
	fmt.Printf("room=%s question=%d/%d remaining=%ds submitted=%v inProgress=%v roster=[%s]\n",
		s.GroupID, s.CurrentQuestionIndex+1, s.TotalQuestions, s.TimeRemaining,
		s.IsSubmitted, s.InProgress, strings.Join(roster, ", "))
}
