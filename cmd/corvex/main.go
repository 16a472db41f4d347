// Command corvex manages a corvex workspace from the terminal.
//
// Usage:
//
//	corvex [flags] ls | mkdir PATH | touch PATH | rename PATH NAME
//	corvex [flags] mv PATH FOLDER | rm PATH | cat PATH | write PATH
//	corvex [flags] watch
//	corvex [flags] shell
//
// Paths are relative to the workspace root; "/" names the root itself.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/corvex/corvex/internal/client"
	"github.com/corvex/corvex/internal/config"
	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
	"github.com/corvex/corvex/internal/workspace"
)

func main() {
	defaults := config.LoadClient()
	serverURL := flag.String("server", defaults.ServerURL, "Server URL (CORVEX_SERVER)")
	token := flag.String("token", defaults.Token, "JWT authentication token (CORVEX_TOKEN)")
	timeout := flag.Duration("timeout", defaults.Timeout, "Per-request timeout")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := logging.Init(logging.Config{Level: *logLevel, Format: "console", OutputPath: "stderr"}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Config{
		BaseURL:   *serverURL,
		Timeout:   *timeout,
		AuthToken: *token,
	})

	var err error
	switch args := flag.Args(); args[0] {
	case "watch":
		err = watch(ctx, c, os.Stdout)
	case "shell":
		err = shell(ctx, c, os.Stdin, os.Stdout)
	default:
		var s *session
		if s, err = open(ctx, c, os.Stdin, os.Stdout, false, workspace.Config{Logger: logging.L()}); err == nil {
			err = s.run(ctx, args)
		}
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "corvex:", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: corvex [flags] COMMAND [ARGS]\n\nCommands:\n")
	for _, u := range usages(commands) {
		fmt.Fprintf(out, "  %s\n", u)
	}
	fmt.Fprintf(out, "  watch\n  shell\n\nFlags:\n")
	flag.PrintDefaults()
}

func usages(set map[string]command) []string {
	out := make([]string, 0, len(set))
	for _, c := range set {
		out = append(out, c.usage)
	}
	sort.Strings(out)
	return out
}

// open loads the workspace into a new engine.
func open(ctx context.Context, svc workspace.Service, in io.Reader, out io.Writer, shell bool, cfg workspace.Config) (*session, error) {
	e := workspace.New(svc, cfg)
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	return &session{engine: e, in: in, out: out, shell: shell}, nil
}

// watch prints every change to the workspace as it arrives on the change
// feed, as a diff of the rendered tree.
func watch(ctx context.Context, c *client.Client, out io.Writer) error {
	var prev *models.Node
	var e *workspace.Engine
	s, err := open(ctx, c, nil, out, false, workspace.Config{
		Logger: logging.L(),
		OnChange: func() {
			if e == nil {
				return
			}
			cur := e.Snapshot()
			if prev != nil {
				for _, line := range tree.Changes(prev, cur) {
					fmt.Fprintln(out, line)
				}
			}
			prev = cur
		},
		OnError: func(err error) {
			logging.Warn("watch", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	e = s.engine
	prev = e.Snapshot()
	fmt.Fprintln(out, renderView(e.View(), true))

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		for ev := range c.Subscribe(ctx) {
			logging.Debug("change event",
				zap.String("type", ev.Type),
				zap.String("path", ev.Path),
				zap.String("new_path", ev.NewPath))
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()

	return e.Watch(ctx, changes)
}

// shell runs an interactive session over one engine.
func shell(ctx context.Context, c *client.Client, in *os.File, out io.Writer) error {
	interactive := term.IsTerminal(int(in.Fd()))
	s, err := open(ctx, c, in, out, true, workspace.Config{
		Logger: logging.L(),
		OnError: func(err error) {
			logging.Debug("intent failed", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	return repl(ctx, s, in, interactive)
}

func repl(ctx context.Context, s *session, in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(s.out, "corvex> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case "help":
			for _, u := range append(usages(commands), usages(shellCommands)...) {
				fmt.Fprintln(s.out, " ", u)
			}
			continue
		case "write":
			fmt.Fprintln(s.out, "write reads standard input; use it outside the shell")
			continue
		}

		if err := s.run(ctx, args); err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
	}
}
