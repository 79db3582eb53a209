package main

import (
	"context"
	"flag"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/omochice/toy-room-relay/internal/chat"
	"github.com/omochice/toy-room-relay/internal/config"
	"github.com/omochice/toy-room-relay/internal/transport/tcp"
	"github.com/omochice/toy-room-relay/internal/transport/ws"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	log.SetPrefix("[RELAY] ")

	hub := chat.NewHub()
	rooms := chat.NewRooms(cfg.HistoryLimit)
	router := chat.NewRouter(hub, rooms, cfg.HistoryWindow)

	srv := tcp.New(cfg.Addr, router, ws.Options{
		MaxRequestSize: cfg.MaxRequestSize,
		MaxFrameSize:   cfg.MaxFrameSize,
		WriteTimeout:   cfg.WriteTimeout,
	})
	if err := srv.Listen(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	go func() {
		if err := srv.Serve(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				log.Printf("Shutting down, %d clients connected, %d rooms", hub.ClientCount(), rooms.Len())
				return srv.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Relay server stopped with code %d", exitCode)
	os.Exit(exitCode)
}
