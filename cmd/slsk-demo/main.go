// Command slsk-demo is a minimal interactive shell over the soulseek
// client library: connect, search, browse, and download, nothing else.
// It exists to exercise the library end to end, not as a full client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	soulseek "github.com/jpdillingham/Soulseek.NET-sub005"
)

func main() {
	app := &cli.App{
		Name:  "slsk-demo",
		Usage: "interactive demo shell for the soulseek client library",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: "server.slsknet.org:2242", Usage: "Soulseek server address"},
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", Usage: "omit to be prompted"},
			&cli.IntFlag{Name: "listen-port", Value: 2234},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	password := c.String("password")
	if password == "" {
		pw, err := readSecurePassword("password: ")
		if err != nil {
			return cli.Exit(fmt.Errorf("read password: %w", err), 1)
		}
		password = pw
	}

	cfg := soulseek.DefaultConfig()
	cfg.ServerAddress = c.String("address")
	cfg.Username = c.String("username")
	cfg.Password = password
	cfg.ListenPort = c.Int("listen-port")
	cfg.Logger = zap.NewNop()

	client := soulseek.New(cfg)
	client.Subscribe(logEvent)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return cli.Exit(fmt.Errorf("connect: %w", err), 1)
	}
	defer client.Disconnect(nil)

	fmt.Printf("connected as %s\n", cfg.Username)
	return newShell(client).run()
}

func readSecurePassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pass), nil
}

func logEvent(ev soulseek.Event) {
	switch ev.Kind {
	case soulseek.EventStateChanged:
		fmt.Printf("[state] %s -> %s\n", ev.PreviousState, ev.NewState)
	case soulseek.EventDisconnected:
		fmt.Printf("[disconnected] %v\n", ev.Cause)
	case soulseek.EventSearchResponseReceived:
		if ev.Response != nil {
			fmt.Printf("[search %d] %s: %d files\n", ev.Search.Token, ev.Response.Username, len(ev.Response.Files))
		}
	case soulseek.EventTransferStateChanged:
		if ev.Transfer != nil {
			fmt.Printf("[transfer] %s %s -> %s\n", ev.Transfer.Filename, ev.Transfer.Username, ev.Transfer.State())
		}
	case soulseek.EventUploadRequested:
		fmt.Printf("[upload requested] %s wants %s\n", ev.PeerName, ev.RequestedFilename)
	}
}

// shell drives a readline-based command loop over the connected client,
// grounded on the teacher's VM CLI prompt (parse a line with shellquote,
// dispatch to a small command table).
type shell struct {
	client *soulseek.Client
	rl     *readline.Instance
}

func newShell(client *soulseek.Client) *shell {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("search"),
		readline.PcItem("browse"),
		readline.PcItem("download"),
		readline.PcItem("exit"),
	)
	rl, err := readline.NewEx(&readline.Config{Prompt: "slsk> ", AutoComplete: completer})
	if err != nil {
		rl = nil
	}
	return &shell{client: client, rl: rl}
}

func (s *shell) run() error {
	if s.rl == nil {
		return fmt.Errorf("shell: readline unavailable")
	}
	defer s.rl.Close()
	for {
		line, err := s.rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return fmt.Errorf("shell: read input: %w", err)
		}

		args, err := shellquote.Split(line)
		if err != nil || len(args) == 0 {
			continue
		}

		if err := s.dispatch(args); err != nil {
			fmt.Fprintln(s.rl.Stderr(), err)
		}
	}
}

func (s *shell) dispatch(args []string) error {
	switch args[0] {
	case "exit", "quit":
		return io.EOF
	case "search":
		return s.cmdSearch(args[1:])
	case "browse":
		return s.cmdBrowse(args[1:])
	case "download":
		return s.cmdDownload(args[1:])
	default:
		return fmt.Errorf("shell: unknown command %q", args[0])
	}
}

func (s *shell) cmdSearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <text>")
	}
	text := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	search, err := s.client.Search(ctx, text, soulseek.NetworkScope(), soulseek.DefaultSearchOptions())
	if err != nil {
		return err
	}
	fmt.Printf("search started, token=%d\n", search.Token)
	return nil
}

func (s *shell) cmdBrowse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: browse <username>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := s.client.Browse(ctx, args[0])
	if err != nil {
		return err
	}
	for _, dir := range result.Directories {
		fmt.Printf("%s (%d files)\n", dir.Name, len(dir.Files))
	}
	return nil
}

func (s *shell) cmdDownload(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: download <username> <filename> <size>")
	}
	size, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("parse size: %w", err)
	}
	f, err := os.Create(baseName(args[1]))
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	t, err := s.client.Download(ctx, args[0], args[1], size, f, soulseek.TransferOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("download finished: %s (%d bytes)\n", t.State(), t.BytesTransferred())
	return nil
}

func baseName(filename string) string {
	norm := strings.ReplaceAll(filename, "\\", "/")
	parts := strings.Split(norm, "/")
	return parts[len(parts)-1]
}
