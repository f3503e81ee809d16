// Command agent queues an autonomous player against a matchmaking server and
// plays one tic-tac-toe match to completion.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colosseumrl/colosseumrl/internal/agent"
)

func main() {
	name := flag.String("name", "agent", "username to queue as")
	credential := flag.String("credential", "agent-secret", "credential hash to authenticate with")
	serverURL := flag.String("server", "http://localhost:50051", "matchmaking API base URL")
	difficulty := flag.String("difficulty", "hard", "play strength: easy, medium or hard")
	think := flag.Duration("think", 100*time.Millisecond, "artificial delay before each move")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := agent.New(*name, *credential, *serverURL, &agent.TicTacToePolicy{Difficulty: *difficulty})
	a.ThinkDelay = *think

	slog.Info("requesting match", "player.name", *name, "server", *serverURL)
	reply, err := a.RequestMatch(ctx)
	if err != nil {
		log.Fatalf("failed to get a match: %v", err)
	}
	slog.Info("match assigned", "host", reply.Host, "port", reply.Port, "rating", reply.Rating)

	outcome, err := a.Play(ctx, reply)
	if err != nil {
		log.Fatalf("match failed: %v", err)
	}
	slog.Info("match finished", "won", outcome.Won, "reward", outcome.Reward)
}
