// Command ws_room is an interactive terminal participant for a room:
// join, vote, chat, and (with the secret) run host actions from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pointdeck/pointdeck-server/internal/client"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_room: %v", err)
		os.Exit(1)
	}
}

func run() error {
	wsBase := flag.String("ws", "ws://localhost:8080", "WebSocket base URL")
	roomID := flag.String("room", "", "room id (required)")
	secret := flag.String("secret", "", "room secret for host actions")
	name := flag.String("name", "cli-user", "display name")
	flag.Parse()

	if *roomID == "" {
		return fmt.Errorf("-room is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ctl *client.Controller
	ctl = client.New(client.Options{
		BaseURL:    *wsBase,
		RoomID:     *roomID,
		RoomSecret: *secret,
		Callbacks: client.Callbacks{
			OnConnect: func() {
				fmt.Println("* connected")
				// Rejoin on every (re)connect; the server assigns a
				// fresh client id each time.
				if err := ctl.Join(*name); err != nil {
					fmt.Printf("! join: %v\n", err)
				}
			},
			OnState: func(st *room.State, d room.Derived) {
				current := "none"
				if d.CurrentStory != nil {
					current = d.CurrentStory.Title
				}
				fmt.Printf("* %s | story: %s | waiting for %d vote(s)\n", st.Phase, current, d.WaitingFor)
				if d.Stats != nil {
					fmt.Printf("* stats: min=%g max=%g median=%g spread=%g\n",
						d.Stats.Min, d.Stats.Max, d.Stats.Median, d.Stats.Spread)
				}
			},
			OnChat: func(msg room.ChatMessage) {
				fmt.Printf("<%s> %s\n", msg.Name, msg.Text)
			},
			OnError: func(msg string) { fmt.Printf("! %s\n", msg) },
			OnFinished: func(reason string) {
				fmt.Printf("* session over: %s\n", reason)
				stop()
			},
			OnReconnecting: func(attempt, max int) {
				fmt.Printf("* reconnecting (%d/%d)\n", attempt, max)
			},
		},
	})
	ctl.Connect()
	defer ctl.Disconnect()

	fmt.Println("Commands: /story <title>, /vote <value>, /reveal, /lock <value>, /next, /clear, /finish, /deck. Plain text chats. Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handle(ctl, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func handle(ctl *client.Controller, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return ctl.Chat(line)
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "story":
		return ctl.AddStory(rest, "")
	case "vote":
		st, _ := ctl.State()
		if st == nil || st.CurrentStoryID == "" {
			return fmt.Errorf("no current story")
		}
		return ctl.Vote(st.CurrentStoryID, rest)
	case "reveal":
		return ctl.Reveal()
	case "lock":
		st, _ := ctl.State()
		if st == nil || st.CurrentStoryID == "" {
			return fmt.Errorf("no current story")
		}
		return ctl.Lock(st.CurrentStoryID, rest)
	case "next":
		return ctl.Next()
	case "clear":
		st, _ := ctl.State()
		if st == nil || st.CurrentStoryID == "" {
			return fmt.Errorf("no current story")
		}
		return ctl.ClearVotes(st.CurrentStoryID)
	case "finish":
		return ctl.Finish()
	case "deck":
		fmt.Printf("deck: %s\n", strings.Join(ctl.DeckValues(), " "))
		return nil
	default:
		return fmt.Errorf("unknown command /%s", cmd)
	}
}
