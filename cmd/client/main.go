package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/grouptalk/internal/client"
	"github.com/dkeye/grouptalk/internal/config"
	"github.com/dkeye/grouptalk/internal/domain"
)

// console prints room traffic for a terminal user.
type console struct {
	client.NopEvents
}

func (console) ConnectionChanged(state client.ConnState) {
	log.Info().Stringer("state", state).Msg("connection")
}

func (console) RoomChanged(id domain.RoomID, name domain.RoomName) {
	fmt.Printf("* joined %s (%s)\n", name, id)
}

func (console) LeftRoom() {
	fmt.Println("* back in the lobby")
}

func (console) ChatReceived(_ domain.SessionID, name, text string) {
	fmt.Printf("> %s: %s\n", name, text)
}

func (console) MemberJoined(_ domain.SessionID, name string) {
	fmt.Printf("* %s is here\n", name)
}

func (console) MemberLeft(_ domain.SessionID, name string) {
	fmt.Printf("* User: %s left the group.\n", name)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	flags := pflag.NewFlagSet("grouptalk-client", pflag.ExitOnError)
	flags.String("host", "localhost", "server host, optionally host:port")
	flags.Int("port", 80, "server port when host has none")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	name := flags.String("name", "", "display name")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	c, err := client.New(cfg, console{}, client.Devices{})
	if err != nil {
		log.Fatal().Err(err).Msg("client setup")
	}
	if *name != "" {
		_ = c.SetName(*name)
	}
	c.Start(ctx, cfg.Client.Host)
	defer c.Close()

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
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := command(c, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

// command runs one input line and reports whether the user asked to quit.
func command(c *client.Client, line string) bool {
	verb, arg, _ := strings.Cut(line, " ")
	var err error
	switch verb {
	case "":
		return false
	case "/quit":
		return true
	case "/name":
		err = c.SetName(arg)
	case "/create":
		err = c.CreateRoom(arg)
	case "/join":
		err = c.JoinRoom(domain.RoomID(strings.ToUpper(arg)))
	case "/leave":
		err = c.LeaveRoom()
	default:
		err = c.Chat(line)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return false
}
