// Command ws_smoke runs one estimation round against a live server:
// create room, join, add a story, vote, reveal, lock, finish.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pointdeck/pointdeck-server/internal/client"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	wsBase := flag.String("ws", "ws://localhost:8080", "WebSocket base URL")
	name := flag.String("name", "smoke-tester", "participant name")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	resp, err := http.Post(*apiBase+"/api/rooms", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create room: unexpected status %d", resp.StatusCode)
	}

	var created struct {
		RoomID     string `json:"roomId"`
		RoomSecret string `json:"roomSecret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("decode create response: %w", err)
	}
	fmt.Printf("room %s created\n", created.RoomID)

	states := make(chan *room.State, 16)
	errs := make(chan string, 16)
	finished := make(chan string, 1)

	ctl := client.New(client.Options{
		BaseURL:    *wsBase,
		RoomID:     created.RoomID,
		RoomSecret: created.RoomSecret,
		Callbacks: client.Callbacks{
			OnState: func(st *room.State, _ room.Derived) {
				select {
				case states <- st:
				default:
				}
			},
			OnError:    func(msg string) { errs <- msg },
			OnFinished: func(reason string) { finished <- reason },
		},
	})
	ctl.Connect()
	defer ctl.Disconnect()

	deadline := time.After(*timeout)
	waitState := func(ok func(*room.State) bool) (*room.State, error) {
		for {
			select {
			case st := <-states:
				if ok(st) {
					return st, nil
				}
			case msg := <-errs:
				return nil, fmt.Errorf("server error: %s", msg)
			case <-deadline:
				return nil, fmt.Errorf("timed out waiting for state")
			}
		}
	}

	if _, err := waitState(func(st *room.State) bool { return st != nil }); err != nil {
		return err
	}

	if err := ctl.Join(*name); err != nil {
		return err
	}
	if _, err := waitState(func(st *room.State) bool { return len(st.Participants) == 1 }); err != nil {
		return err
	}
	fmt.Println("joined")

	if err := ctl.AddStory("Smoke test story", ""); err != nil {
		return err
	}
	st, err := waitState(func(st *room.State) bool { return len(st.Stories) == 1 })
	if err != nil {
		return err
	}
	storyID := st.Stories[0].ID
	fmt.Printf("story %s added\n", storyID)

	if err := ctl.Vote(storyID, "5"); err != nil {
		return err
	}
	if _, err := waitState(func(st *room.State) bool { return len(st.VotesByStory[storyID]) == 1 }); err != nil {
		return err
	}
	fmt.Println("voted 5")

	if err := ctl.Reveal(); err != nil {
		return err
	}
	if _, err := waitState(func(st *room.State) bool { return st.Phase == room.PhaseRevealed }); err != nil {
		return err
	}
	fmt.Println("revealed")

	if err := ctl.Lock(storyID, "5"); err != nil {
		return err
	}
	if _, err := waitState(func(st *room.State) bool { return st.LockedByStory[storyID] == "5" }); err != nil {
		return err
	}
	fmt.Println("locked at 5")

	if err := ctl.Finish(); err != nil {
		return err
	}
	select {
	case reason := <-finished:
		fmt.Printf("finished: %s\n", reason)
	case <-deadline:
		return fmt.Errorf("timed out waiting for finish")
	}

	return nil
}
