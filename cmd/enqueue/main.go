// Command enqueue queues a turn through the API and optionally waits for the
// worker to play it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/client"
)

func main() {
	apiURL := flag.String("api", envOr("API_BASE_URL", "http://localhost:8080"), "game API base URL")
	username := flag.String("user", "", "player username")
	wait := flag.Duration("wait", 2*time.Minute, "how long to wait for the turn outcome (0 to return at once)")
	flag.Parse()

	message := strings.Join(flag.Args(), " ")
	if *username == "" || strings.TrimSpace(message) == "" {
		fmt.Fprintln(os.Stderr, "usage: enqueue -user NAME [-api URL] [-wait DURATION] message...")
		os.Exit(2)
	}

	if err := run(context.Background(), client.New(*apiURL, nil), *username, message, *wait); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, api *client.Client, username, message string, wait time.Duration) error {
	var events chan client.Event
	var listenErr chan error
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()

		events = make(chan client.Event, 8)
		listenErr = make(chan error, 1)
		go func() { listenErr <- api.ListenEvents(ctx, username, events) }()

		// Subscribe before queueing so the outcome cannot be missed.
		if err := awaitConnected(ctx, events, listenErr); err != nil {
			return err
		}
	}

	resp, err := api.EnqueueTurn(ctx, username, message)
	if err != nil {
		return err
	}
	fmt.Printf("Queued turn %s (queue depth %d)\n", resp.RequestID, resp.QueueDepth)
	if wait <= 0 {
		return nil
	}

	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case "turn.completed":
				fmt.Printf("Narrator: %v\n", ev.Data["narrator_line"])
				return nil
			case "turn.failed", "session.save_failed":
				return fmt.Errorf("%s: %v", ev.Type, ev.Data["error"])
			}
		case err := <-listenErr:
			return fmt.Errorf("event stream closed: %w", err)
		case <-ctx.Done():
			return fmt.Errorf("no outcome within %s", wait)
		}
	}
}

func awaitConnected(ctx context.Context, events <-chan client.Event, listenErr <-chan error) error {
	for {
		select {
		case ev := <-events:
			if ev.Type == "connected" {
				return nil
			}
		case err := <-listenErr:
			return fmt.Errorf("failed to subscribe to events: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
