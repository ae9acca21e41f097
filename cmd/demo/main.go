// Command demo drives the full client stack against a running relay: it
// watches a conversation and an attendance session, sends optimistic messages
// typed on stdin, and prints every reconciliation as it happens.
//
//	demo -token $TOKEN -user alice -conversation conv-1 -session sess-1
//
// Lines typed are sent as messages. Commands:
//
//	/read <message-id>            mark a message read
//	/mark <student-id> <status>   mark attendance (present|absent|late|excused)
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"eduhub-realtime/config"
	"eduhub-realtime/internal/attendance"
	"eduhub-realtime/internal/durable"
	"eduhub-realtime/internal/messaging"
	"eduhub-realtime/internal/notice"
	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

func main() {
	var (
		token        = flag.String("token", os.Getenv("RT_TOKEN"), "session bearer token")
		userID       = flag.String("user", "demo-user", "acting user id")
		conversation = flag.String("conversation", "conv-1", "conversation to watch")
		session      = flag.String("session", "", "attendance session to watch (optional)")
	)
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "demo: -token (or RT_TOKEN) is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: failed to load config:", err)
		os.Exit(1)
	}

	logger := log.Init(log.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         log.ModeDevelopment,
		Encoding:     log.EncodingConsole,
		ColorEnabled: true,
	})

	tokens := realtime.StaticToken(*token)
	client := realtime.New(cfg.Client, logger, tokens)
	api := durable.NewClient(cfg.Client.APIBaseURL, tokens, logger)

	notices := notice.NewCenter()
	notices.OnChange(func() {
		list := notices.List()
		if len(list) > 0 {
			last := list[len(list)-1]
			fmt.Printf("!! [%s] %s\n", last.Level, last.Text)
		}
	})

	msgSvc := messaging.NewService(client, api, notices, *userID, logger)
	defer msgSvc.Close()
	msgSvc.OnUpdate(func() {
		for _, m := range msgSvc.Messages(*conversation) {
			marker := " "
			if m.Pending {
				marker = "*"
			}
			fmt.Printf("%s %s <%s> %s\n", marker, m.ID, m.SenderID, m.Body)
		}
	})

	attSvc := attendance.NewService(client, api, notices, *userID, logger)
	defer attSvc.Close()
	attSvc.OnUpdate(func() {
		for _, r := range attSvc.Records(*session) {
			fmt.Printf("  attendance %s: %s (%s)\n", r.StudentID, r.Status, r.ID)
		}
	})

	typing := realtime.NewTypingNotifier(client, *userID, cfg.Client.TypingThrottle)
	var tracker *realtime.TypingTracker
	tracker = realtime.NewTypingTracker(client, cfg.Client.TypingExpiry, func(conv string) {
		if conv == *conversation {
			fmt.Printf("-- typing: %s\n", strings.Join(tracker.Typing(conv), ", "))
		}
	})
	defer tracker.Close()

	client.OnStatusChange(func(change realtime.StatusChange) {
		fmt.Printf("-- status: %s\n", change.New)
	})

	ctx := context.Background()
	client.Start(ctx)
	defer client.Stop()

	msgSvc.Watch(*conversation)
	if *session != "" {
		attSvc.Watch(*session)
	}

	go readInput(ctx, msgSvc, attSvc, typing, *conversation, *session)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func readInput(
	ctx context.Context,
	msgSvc *messaging.Service,
	attSvc *attendance.Service,
	typing *realtime.TypingNotifier,
	conversation, session string,
) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "/read "):
			msgSvc.MarkRead(strings.TrimSpace(strings.TrimPrefix(line, "/read ")))

		case strings.HasPrefix(line, "/mark "):
			fields := strings.Fields(strings.TrimPrefix(line, "/mark "))
			if len(fields) != 2 {
				fmt.Println("usage: /mark <student-id> <status>")
				continue
			}
			if session == "" {
				fmt.Println("demo: start with -session to mark attendance")
				continue
			}
			if _, err := attSvc.Mark(ctx, session, fields[0], fields[1]); err != nil {
				fmt.Println("demo:", err)
			}

		default:
			typing.Start(conversation)
			msgSvc.Send(ctx, conversation, line)
			typing.Stop(conversation)
		}
	}
}
