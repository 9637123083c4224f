// Command server relays chat frames between the clients of every room.
//
//	server <port> [<port> ...]
//
// Each port gets its own listener and room; all of them share one reactor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/botaojia/chat/config"
	"github.com/botaojia/chat/hub"
	"github.com/botaojia/chat/reactor"
	"github.com/botaojia/chat/session"
	"github.com/botaojia/chat/tcp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: server <port> [<port> ...]")
		return 1
	}
	if err := validatePorts(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	setupLogger(cfg.LogLevel)

	r, err := reactor.New(cfg.Workers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	strand := r.NewStrand()
	sessionOptions := []session.Option{session.WithMaxQueue(cfg.MaxQueue)}

	rooms := make(map[string]*hub.Room, len(args))
	listeners := make([]*tcp.Listener, 0, len(args))
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	for _, port := range args {
		room, err := hub.New(port, hub.WithHistorySize(cfg.HistorySize))
		if err != nil {
			closeAll()
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		ln, err := net.Listen("tcp", ":"+port)
		if err != nil {
			closeAll()
			fmt.Fprintln(os.Stderr, "listen:", err)
			return 1
		}
		rooms[port] = room
		listeners = append(listeners, tcp.NewListener(ln, room, strand, tcp.WithSessionOptions(sessionOptions...)))
	}

	var server *http.Server
	if cfg.HTTPAddr != "" {
		server = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: newMux(rooms, args[0], strand, slog.Default(), sessionOptions...),
		}
		go func() {
			slog.Info("http gateway starting", "addr", cfg.HTTPAddr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http gateway error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, l := range listeners {
		l.Start()
	}
	slog.Info("server starting", "ports", args, "workers", cfg.Workers)
	r.Run(ctx)

	slog.Info("server shutting down")
	closeAll()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}
	return 0
}

func validatePorts(ports []string) error {
	for _, p := range ports {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
	}
	return nil
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
