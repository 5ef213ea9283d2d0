package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/logger"
)

const commentPrefix = "#"

// Outcome tells the dispatch loop whether to keep reading input.
type Outcome int

const (
	Continue Outcome = iota
	Exit
)

func (o Outcome) String() string {
	if o == Exit {
		return "exit"
	}
	return "continue"
}

// Handler runs a command with its parsed arguments. Output meant for the
// operator goes to out.
type Handler func(ctx context.Context, out io.Writer, args []any) (Outcome, error)

// Command is one registry entry.
type Command struct {
	Name    string
	Summary string
	Args    []Arg
	Handler Handler
}

// Usage returns the command name followed by its argument placeholders.
func (c Command) Usage() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		parts = append(parts, "<"+arg.Name+">")
	}
	return strings.Join(parts, " ")
}

// Dispatcher reads operator input line by line and runs matching commands.
type Dispatcher struct {
	registry *Registry
	out      io.Writer
	logger   logger.Logger
	prompt   string
}

func New(registry *Registry, out io.Writer, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.With("dispatch")
	}

	return &Dispatcher{
		registry: registry,
		out:      out,
		logger:   log,
	}
}

// SetPrompt sets the text Run prints before reading each line.
func (d *Dispatcher) SetPrompt(prompt string) {
	d.prompt = prompt
}

// Run processes lines from in until an Exit outcome, end of input or ctx
// cancellation. None of these is an error; only a failing reader is.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, readErr := readLines(ctx, in)

	for {
		fmt.Fprint(d.out, d.prompt)

		select {
		case <-ctx.Done():
			if d.prompt != "" {
				fmt.Fprintln(d.out)
			}
			d.logger.Info().Msg("Dispatcher interrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return errors.New().Wrap(errors.ErrInternal, err)
				}
				d.logger.Info().Msg("Dispatcher reached end of input")
				return nil
			}

			if d.Execute(ctx, line) == Exit {
				d.logger.Info().Msg("Dispatcher exit requested")
				return nil
			}
		}
	}
}

// Execute runs a single input line and reports any failure to the
// operator. Failures never stop the loop.
func (d *Dispatcher) Execute(ctx context.Context, line string) Outcome {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, commentPrefix) {
		return Continue
	}

	tokens := strings.Fields(line)
	cmd, ok := d.registry.Lookup(tokens[0])
	if !ok {
		d.logger.Debug().Str("error_code", string(errors.ErrUnknownCommand)).Str("input", line).Msg("No matching command")
		fmt.Fprintf(d.out, "no matching command: %s\n", line)
		return Continue
	}

	args, err := parseArgs(cmd, tokens[1:])
	if err != nil {
		d.report(line, err)
		return Continue
	}

	outcome, err := cmd.Handler(ctx, d.out, args)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			fmt.Fprintf(d.out, "%s: interrupted\n", line)
			return outcome
		}
		d.report(line, err)
	}

	return outcome
}

func (d *Dispatcher) report(line string, err error) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		d.logger.ErrorWithCode(appErr).Str("command", line).Msg("Command failed")
	} else {
		d.logger.Error().Err(err).Str("command", line).Msg("Command failed")
	}

	fmt.Fprintf(d.out, "%s: %v\n", line, err)
}

func parseArgs(cmd Command, tokens []string) ([]any, error) {
	errFactory := errors.New()

	if len(tokens) != len(cmd.Args) {
		return nil, errFactory.WithMessage(errors.ErrArgumentCount,
			fmt.Sprintf("%s expects %d argument(s), got %d (usage: %s)", cmd.Name, len(cmd.Args), len(tokens), cmd.Usage()))
	}

	args := make([]any, len(tokens))
	for i, token := range tokens {
		v, err := cmd.Args[i].Parse(token)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrArgumentParse, err).
				WithMessage(fmt.Sprintf("invalid %s %q", cmd.Args[i].Name, token))
		}
		args[i] = v
	}

	return args, nil
}

// readLines feeds lines from in on a channel so that Run can stop on ctx
// without waiting for the next line. The goroutine exits at end of input,
// or once ctx is done and its current read returns.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}
