package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/adi-253/Talkie/relay/internal/chat"
)

func main() {
	url := pflag.String("url", "ws://localhost:8080/ws", "relay WebSocket endpoint")
	name := pflag.String("name", "me", "label shown next to your own messages")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := chat.Dial(ctx, *url)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	session := chat.NewSession(conn, chat.DefaultConfig())
	ui := &terminal{session: session, name: *name, out: os.Stdout}
	session.OnUpdate(ui.render)

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx, session) }()

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
			<-runErr
			return
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatalf("Connection lost: %v", err)
			}
			fmt.Fprintln(ui.out, "Disconnected")
			return
		case line, ok := <-lines:
			if !ok || !ui.handle(line) {
				lines = nil
				stop()
			}
		}
	}
}

const usage = "commands: /who, /click <message id>, /typing, /quit"

type terminal struct {
	session *chat.Session
	name    string
	out     io.Writer
}

// handle runs one input line and reports whether the client should keep
// going.
func (t *terminal) handle(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "/quit":
		return false
	case "/who":
		for _, p := range t.session.Peers() {
			status := ""
			if p.Typing {
				status = " (typing)"
			}
			fmt.Fprintf(t.out, "  %s %s%s\n", p.Color, p.ID, status)
		}
	case "/click":
		if len(fields) != 2 {
			fmt.Fprintln(t.out, "usage: /click <message id>")
			return true
		}
		out, err := t.session.ClickMessage(fields[1])
		if err != nil {
			fmt.Fprintf(t.out, "click: %v\n", err)
		} else if out == chat.ClickCounted || out == chat.ClickIgnored {
			fmt.Fprintf(t.out, "click on %s: %s\n", fields[1], outcomeName(out))
		}
	case "/typing":
		if err := t.session.Keystroke(); err != nil {
			log.Printf("[Chat] %v", err)
		}
	default:
		if strings.HasPrefix(fields[0], "/") {
			fmt.Fprintf(t.out, "unknown command %s\n%s\n", fields[0], usage)
			return true
		}
		if _, err := t.session.SendMessage(line); err != nil {
			fmt.Fprintf(t.out, "send: %v\n", err)
		}
	}
	return true
}

func (t *terminal) render(u chat.Update) {
	switch u.Kind {
	case chat.UpdateSession:
		fmt.Fprintf(t.out, "Connected as %s with %d peers\n", t.session.SelfID(), len(t.session.Peers()))
	case chat.UpdatePeerJoined:
		fmt.Fprintf(t.out, "* %s joined\n", u.PeerID)
	case chat.UpdatePeerLeft:
		fmt.Fprintf(t.out, "* %s left\n", u.PeerID)
	case chat.UpdateTyping:
		if t.session.IsTyping(u.PeerID) {
			fmt.Fprintf(t.out, "* %s is typing...\n", u.PeerID)
		}
	case chat.UpdateMessage:
		if msg, ok := t.session.Message(u.MessageID); ok {
			fmt.Fprintf(t.out, "[%s] %s: %s\n", msg.ID(), t.author(msg), msg.Body)
		}
	case chat.UpdateReconciled:
		fmt.Fprintf(t.out, "* delivered as %s\n", u.MessageID)
	case chat.UpdateEmphasis:
		if msg, ok := t.session.Message(u.MessageID); ok {
			fmt.Fprintf(t.out, "* [%s] %s: %s (%s)\n", msg.ID(), t.author(msg), msg.Body, msg.Emphasis)
		}
	}
}

func (t *terminal) author(msg chat.Message) string {
	if msg.Own {
		return t.name
	}
	return msg.From
}

func outcomeName(o chat.ClickOutcome) string {
	switch o {
	case chat.ClickCounted:
		return "counted"
	case chat.ClickIgnored:
		return "not your message"
	}
	return ""
}
