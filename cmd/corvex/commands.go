package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
	"github.com/corvex/corvex/internal/workspace"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	args  int // exact argument count, -1 for a range checked by run
	run   func(ctx context.Context, s *session, args []string) error
}

// session is the state a command runs against.
type session struct {
	engine *workspace.Engine
	in     io.Reader
	out    io.Writer

	// shell sessions honor folder expansion when listing
	shell bool
}

var commands = map[string]command{
	"ls": {"ls [-a]", -1, func(ctx context.Context, s *session, args []string) error {
		if len(args) > 1 || (len(args) == 1 && args[0] != "-a") {
			return errUsage
		}
		fmt.Fprintln(s.out, renderView(s.engine.View(), !s.shell || len(args) == 1))
		return nil
	}},
	"mkdir": {"mkdir PATH", 1, func(ctx context.Context, s *session, args []string) error {
		return s.create(ctx, args[0], models.KindFolder)
	}},
	"touch": {"touch PATH", 1, func(ctx context.Context, s *session, args []string) error {
		return s.create(ctx, args[0], models.KindFile)
	}},
	"rename": {"rename PATH NAME", 2, func(ctx context.Context, s *session, args []string) error {
		return s.engine.SubmitName(ctx, clean(args[0]), args[1])
	}},
	"mv": {"mv PATH FOLDER", 2, func(ctx context.Context, s *session, args []string) error {
		return s.engine.RequestMove(ctx, clean(args[0]), clean(args[1]))
	}},
	"rm": {"rm PATH", 1, func(ctx context.Context, s *session, args []string) error {
		return s.engine.RequestDelete(ctx, clean(args[0]))
	}},
	"cat": {"cat PATH", 1, func(ctx context.Context, s *session, args []string) error {
		text, err := s.engine.OpenFile(ctx, clean(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(s.out)
		}
		return nil
	}},
	"write": {"write PATH < content", 1, func(ctx context.Context, s *session, args []string) error {
		data, err := io.ReadAll(s.in)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return s.engine.SaveFile(ctx, clean(args[0]), string(data))
	}},
	"refresh": {"refresh", 0, func(ctx context.Context, s *session, args []string) error {
		return s.engine.Refresh(ctx)
	}},
}

// shellCommands only make sense inside an interactive session, where the
// engine outlives a single command.
var shellCommands = map[string]command{
	"new": {"new file|folder PARENT [INDEX]", -1, func(ctx context.Context, s *session, args []string) error {
		if len(args) < 2 || len(args) > 3 || (args[0] != "file" && args[0] != "folder") {
			return errUsage
		}
		index := -1
		if len(args) == 3 {
			i, err := strconv.Atoi(args[2])
			if err != nil {
				return errUsage
			}
			index = i
		}
		id, err := s.engine.BeginCreate(clean(args[1]), models.ParseKind(args[0]), index)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, id)
		return nil
	}},
	"name": {"name ID [NAME]", -1, func(ctx context.Context, s *session, args []string) error {
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return s.engine.SubmitName(ctx, args[0], name)
	}},
	"cancel": {"cancel ID", 1, func(ctx context.Context, s *session, args []string) error {
		return s.engine.CancelEdit(args[0])
	}},
	"select": {"select PATH", 1, func(ctx context.Context, s *session, args []string) error {
		return s.engine.SelectNode(clean(args[0]))
	}},
	"toggle": {"toggle PATH", 1, func(ctx context.Context, s *session, args []string) error {
		_, err := s.engine.ToggleExpanded(clean(args[0]))
		return err
	}},
}

func (s *session) create(ctx context.Context, path string, kind models.Kind) error {
	path = clean(path)
	if tree.IsRoot(path) {
		return fmt.Errorf("create: %w", models.ErrPermissionDenied)
	}
	_, err := s.engine.Create(ctx, tree.ParentID(path), kind, tree.Name(path))
	return err
}

// clean turns user input into a node id. "/" and "." name the root.
func clean(p string) string {
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

func lookup(name string, shell bool) (command, bool) {
	if c, ok := commands[name]; ok {
		return c, true
	}
	if shell {
		c, ok := shellCommands[name]
		return c, ok
	}
	return command{}, false
}

// run executes one command line.
func (s *session) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	c, ok := lookup(args[0], s.shell)
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if c.args >= 0 && len(args)-1 != c.args {
		return fmt.Errorf("usage: %s", c.usage)
	}
	if err := c.run(ctx, s, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: %s", c.usage)
		}
		return err
	}
	return nil
}
