package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/talkwire/talkwire/internal/client"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(os.Args[2:])
	case "new":
		err = runNewSession(os.Args[2:])
	case "sessions":
		err = runListSessions(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "chat":
		err = runChat(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Print(`talkwire CLI

Usage:
  talkwire login --email ADDR          Obtain a bearer token
  talkwire new [--title T]             Create a conversation
  talkwire sessions                    List conversations
  talkwire history --session ID        Print a conversation transcript
  talkwire chat --session ID MESSAGE   Stream a reply; Ctrl-C cancels

Common flags:
  --server URL    talkwire server (default http://localhost:8085,
                  or TALKWIRE_SERVER)
  --token T       bearer token (default TALKWIRE_TOKEN)
`)
}

func commonFlags(fs *flag.FlagSet) (server, token *string) {
	defServer := os.Getenv("TALKWIRE_SERVER")
	if defServer == "" {
		defServer = "http://localhost:8085"
	}
	server = fs.String("server", defServer, "talkwire server URL")
	token = fs.String("token", os.Getenv("TALKWIRE_TOKEN"), "bearer token")
	return server, token
}

func newClient(server, token string) (*client.Client, error) {
	c, err := client.New(server, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		c.SetToken(token)
	}
	return c, nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server, _ := commonFlags(fs)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	c, err := newClient(*server, "")
	if err != nil {
		return err
	}
	token, err := c.Login(context.Background(), *email)
	if err != nil {
		return err
	}
	fmt.Printf("export TALKWIRE_TOKEN=%s\n", token)
	return nil
}

func runNewSession(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	server, token := commonFlags(fs)
	title := fs.String("title", "", "conversation title")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}
	sess, err := c.CreateSession(context.Background(), *title)
	if err != nil {
		return err
	}
	fmt.Println(sess.ID)
	return nil
}

func runListSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	server, token := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}
	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		title := sess.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", sess.ID, sess.CreatedAt.Format("2006-01-02 15:04"), title)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server, token := commonFlags(fs)
	sessionID := fs.String("session", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return errors.New("--session is required")
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}
	messages, err := c.ListMessages(context.Background(), *sessionID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	server, token := commonFlags(fs)
	sessionID := fs.String("session", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return errors.New("--session is required")
	}
	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		return errors.New("message is required")
	}

	c, err := newClient(*server, *token)
	if err != nil {
		return err
	}

	events, err := c.Start(context.Background(), *sessionID, message)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case <-sigs:
			c.Cancel()
			// the event channel closes without a terminal event; fall
			// through to drain it
		case ev, ok := <-events:
			if !ok {
				fmt.Println("\n[cancelled]")
				return nil
			}
			switch ev.Kind {
			case client.EventFragment:
				fmt.Print(ev.Fragment)
			case client.EventComplete:
				fmt.Println()
				return nil
			case client.EventFailed:
				fmt.Println()
				return ev.Err
			}
		}
	}
}
