// Command client connects to a chat server, sends every line read from
// standard input and prints what the room broadcasts.
//
//	client <nickname> <host> <port>
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botaojia/chat/client"
	"github.com/botaojia/chat/config"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
	"github.com/botaojia/chat/tcp"
)

const dialTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, in io.Reader, out io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: client <nickname> <host> <port>")
		return 1
	}
	nickname, host, port := args[0], args[1], args[2]

	nick, err := protocol.NewNicknameFrame(nickname)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nickname: %v (at most %d bytes)\n", err, protocol.MaxNickname)
		return 1
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), dialTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		return 1
	}

	r, err := reactor.New(1, reactor.WithLogger(logger))
	if err != nil {
		conn.Close()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	c := client.New(nick, tcp.NewStream(conn), r.NewStrand(), out, client.WithLogger(logger))
	c.Start()

	sig, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("stdin read failed", "error", err)
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				c.Close()
				<-c.Done()
				return 0
			}
			c.Write(protocol.TruncateFrame(line))
		case <-c.Done():
			return 0
		case <-sig.Done():
			c.Close()
			<-c.Done()
			return 0
		}
	}
}
