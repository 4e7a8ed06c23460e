package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/itemcollector"
)

func main() {
	banana, err := itemcollector.NewApp(2923300, "Banana", 1, 2, 3)
	if err != nil {
		slog.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	collector, err := itemcollector.New(
		itemcollector.WithApps(banana),
		itemcollector.WithDropCheckInterval(20*time.Second),
		itemcollector.WithPacingDelay(time.Second),
		itemcollector.WithPort(8080),
		itemcollector.WithDropCallback(func(e itemcollector.DropEvent) {
			fmt.Printf("  >> %s received item %s from app %d\n", e.Session, e.ItemDefID, e.AppID)
		}),
	)
	if err != nil {
		slog.Error("failed to create collector", "error", err)
		os.Exit(1)
	}

	// demo sessions live in-process (see demo_session.go)
	for _, name := range []string{"alpha", "beta"} {
		if err := collector.Register(newDemoSession(name, 0.4), nil, nil); err != nil {
			slog.Error("failed to register session", "session", name, "error", err)
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Println("  Item collector demo")
	fmt.Println()
	fmt.Println("  Sessions:   alpha, beta (in-process, 40% drop chance)")
	fmt.Println("  Interval:   20s")
	fmt.Println("  API:        http://localhost:8080/api/sessions")
	fmt.Println("  Live drops: curl -N http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(collector.StartIdling(ctx, "all"))

	if err := collector.Start(ctx); err != nil {
		slog.Error("collector error", "error", err)
		os.Exit(1)
	}
}
