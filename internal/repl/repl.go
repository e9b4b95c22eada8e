package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
)

// REPL is an interactive shell for exploring resolved components
type REPL struct {
	store    storage.Storage
	rl       *readline.Instance
	ctx      context.Context
	out      io.Writer
	runID    string
	commands map[string]command
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

type command struct {
	handler CommandHandler
	usage   string
	desc    string
}

// Config holds REPL configuration
type Config struct {
	Store storage.Storage

	// RunID selects the run to query. Empty means the latest converged run.
	RunID string

	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		store:    cfg.Store,
		out:      out,
		runID:    cfg.RunID,
		ctx:      context.Background(),
		commands: make(map[string]command),
	}

	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	if r.runID == "" {
		if err := r.selectLatest(); err != nil {
			return err
		}
	}

	cyan := color.New(color.FgCyan).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("sgcc> "),
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r.rl = rl
	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C - just show prompt again
				continue
			} else if errors.Is(err, io.EOF) {
				// Ctrl+D - exit
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	name := parts[0]
	args := parts[1:]

	if cmd, ok := r.commands[name]; ok {
		return cmd.handler(args)
	}

	// A bare node id is shorthand for "rep <id>"
	if _, err := types.ParseNodeID(name); err == nil && len(args) == 0 {
		return r.cmdRep(parts)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), name)
	return nil
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	help := command{handler: r.cmdHelp, usage: "help", desc: "Show this help message"}
	exit := command{handler: r.cmdExit, usage: "exit", desc: "Exit the REPL"}

	r.commands["help"] = help
	r.commands["?"] = help
	r.commands["exit"] = exit
	r.commands["quit"] = exit
	r.commands["rep"] = command{handler: r.cmdRep, usage: "rep <node>", desc: "Show the representative of a node"}
	r.commands["members"] = command{handler: r.cmdMembers, usage: "members <node>", desc: "List the component containing a node"}
	r.commands["runs"] = command{handler: r.cmdRuns, usage: "runs [limit]", desc: "List recent resolver runs"}
	r.commands["use"] = command{handler: r.cmdUse, usage: "use <run-id>", desc: "Switch the run being queried"}
	r.commands["status"] = command{handler: r.cmdStatus, usage: "status", desc: "Show the selected run and its iterations"}
}

func (r *REPL) completer() *readline.PrefixCompleter {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("sgcc - connected components explorer"))
	if r.runID != "" {
		fmt.Fprintf(r.out, "Querying run %s\n", r.runID)
	} else {
		fmt.Fprintln(r.out, "No converged run yet; run 'sgcc resolve' first")
	}
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	seen := make(map[string]bool)
	var cmds []command
	for _, cmd := range r.commands {
		if seen[cmd.usage] {
			continue
		}
		seen[cmd.usage] = true
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].usage < cmds[j].usage })

	for _, cmd := range cmds {
		fmt.Fprintf(r.out, "  %-18s %s\n", green(cmd.usage), cmd.desc)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "A bare node id is shorthand for 'rep <node>'.")
	fmt.Fprintln(r.out)
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return io.EOF // Signal to exit the loop
}
