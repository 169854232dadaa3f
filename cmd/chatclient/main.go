// Command chatclient is a terminal chat client. Lines read from stdin are sent
// as messages; updates from the server are printed as they arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

var (
	addr string
	name string
)

func main() {
	flag.StringVar(&addr, "addr", "ws://localhost:1234/ws", "server websocket address")
	flag.StringVar(&name, "name", "", "name to join as")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatclient] ", log.LstdFlags)

	if strings.TrimSpace(name) == "" {
		logger.Fatal("a -name is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := dial(ctx, addr, name, os.Stdout)
	if err != nil {
		logger.Fatal(err)
	}

	if err := c.join(ctx); err != nil {
		logger.Fatal("join: ", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.say(ctx, line); err != nil {
				logger.Println("send:", err)
				break loop
			}
		case err := <-readErr:
			if err != nil && ctx.Err() == nil {
				logger.Println("read:", err)
			}
			return
		case <-ctx.Done():
			break loop
		}
	}

	if err := c.leave(context.Background()); err != nil {
		logger.Println("leave:", err)
	}
	c.close()
}
