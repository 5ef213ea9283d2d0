package dispatch

import (
	"context"
	"io"
	"math"
	"strings"

	"codeberg.org/mutker/mccli/internal/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cast"
)

// Parser converts one input token into a handler argument.
type Parser func(token string) (any, error)

// Arg names a positional command argument and how to parse it.
type Arg struct {
	Name  string
	Parse Parser
}

// IntArg and FloatArg build the argument kinds the command set needs.
func IntArg(name string) Arg {
	return Arg{Name: name, Parse: func(token string) (any, error) { return cast.ToIntE(token) }}
}

// FloatArg accepts finite numbers only.
func FloatArg(name string) Arg {
	return Arg{Name: name, Parse: func(token string) (any, error) {
		v, err := cast.ToFloat64E(token)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "value must be a finite number")
		}
		return v, nil
	}}
}

const helpCommand = "help"

// Registry is the fixed, ordered set of commands a Dispatcher serves. It
// always contains help, which lists the registry itself.
type Registry struct {
	commands []Command
	index    map[string]int
}

// NewRegistry builds a registry from cmds in order. Names must be single
// non-empty tokens and unique.
func NewRegistry(cmds ...Command) (*Registry, error) {
	errFactory := errors.New()

	r := &Registry{
		commands: make([]Command, 0, len(cmds)+1),
		index:    make(map[string]int, len(cmds)+1),
	}

	all := append([]Command{r.help()}, cmds...)
	for _, cmd := range all {
		if cmd.Name == "" || len(strings.Fields(cmd.Name)) != 1 || cmd.Name != strings.TrimSpace(cmd.Name) {
			return nil, errFactory.WithData(errors.ErrInvalidArgument, cmd.Name)
		}
		if cmd.Handler == nil {
			return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "command "+cmd.Name+" has no handler")
		}
		if _, exists := r.index[cmd.Name]; exists {
			return nil, errFactory.WithData(errors.ErrDuplicateName, cmd.Name)
		}

		r.index[cmd.Name] = len(r.commands)
		r.commands = append(r.commands, cmd)
	}

	return r, nil
}

// Lookup finds a command by exact name.
func (r *Registry) Lookup(name string) (Command, bool) {
	i, ok := r.index[name]
	if !ok {
		return Command{}, false
	}
	return r.commands[i], true
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	return append([]Command(nil), r.commands...)
}

func (r *Registry) help() Command {
	return Command{
		Name:    helpCommand,
		Summary: "List available commands",
		Handler: func(_ context.Context, out io.Writer, _ []any) (Outcome, error) {
			r.render(out)
			return Continue, nil
		},
	}
}

func (r *Registry) render(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Command", "Description"})
	for _, cmd := range r.commands {
		t.AppendRow(table.Row{cmd.Usage(), cmd.Summary})
	}
	t.Render()
}
