// Command tail connects to the realtime relay, joins the given rooms and
// prints every frame it receives. Useful for watching a classroom session or
// a conversation while developing against the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"eduhub-realtime/config"
	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

func main() {
	var (
		token = flag.String("token", os.Getenv("RT_TOKEN"), "session bearer token")
		rooms = flag.String("rooms", "", "comma-separated rooms to join")
	)
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "tail: -token (or RT_TOKEN) is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tail: failed to load config:", err)
		os.Exit(1)
	}

	logger := log.Init(log.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         log.ModeDevelopment,
		Encoding:     log.EncodingConsole,
		ColorEnabled: true,
	})

	client := realtime.New(cfg.Client, logger, realtime.StaticToken(*token))

	client.OnStatusChange(func(change realtime.StatusChange) {
		if change.Err != nil {
			fmt.Printf("-- status: %s (%v)\n", change.New, change.Err)
			return
		}
		fmt.Printf("-- status: %s\n", change.New)
	})

	for _, event := range realtime.KnownEvents() {
		client.Subscribe(event, func(e realtime.Event) {
			if e.Room != "" {
				fmt.Printf("[%s] (%s) %s\n", e.Name, e.Room, string(e.Payload))
				return
			}
			fmt.Printf("[%s] %s\n", e.Name, string(e.Payload))
		})
	}

	ctx := context.Background()
	client.Start(ctx)
	defer client.Stop()

	if *rooms != "" {
		for _, room := range strings.Split(*rooms, ",") {
			room = strings.TrimSpace(room)
			if room != "" {
				client.JoinRoom(room)
				fmt.Printf("-- joined %s\n", room)
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
