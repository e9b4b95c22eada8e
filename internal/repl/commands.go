package repl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/sgcc/internal/types"
)

// errNoRun is returned by queries when no run is selected.
var errNoRun = errors.New("no run selected; use 'runs' and 'use <run-id>'")

// selectLatest points the REPL at the latest converged run, if any.
func (r *REPL) selectLatest() error {
	run, err := r.store.LatestRun(r.ctx)
	if errors.Is(err, types.ErrRunNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find latest run: %w", err)
	}
	r.runID = run.ID
	return nil
}

func parseNodeArg(args []string, usage string) (types.NodeID, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return types.ParseNodeID(args[0])
}

// cmdRep prints the representative of a node.
func (r *REPL) cmdRep(args []string) error {
	node, err := parseNodeArg(args, "rep <node>")
	if err != nil {
		return err
	}
	if r.runID == "" {
		return errNoRun
	}

	rep, mapped, err := r.store.GetRepresentative(r.ctx, r.runID, node)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	if !mapped {
		fmt.Fprintf(r.out, "%d is a representative %s\n", node, green("(kept)"))
		return nil
	}
	fmt.Fprintf(r.out, "%d -> %d\n", node, rep)
	return nil
}

// cmdMembers lists the whole component containing a node.
func (r *REPL) cmdMembers(args []string) error {
	node, err := parseNodeArg(args, "members <node>")
	if err != nil {
		return err
	}
	if r.runID == "" {
		return errNoRun
	}

	rep, _, err := r.store.GetRepresentative(r.ctx, r.runID, node)
	if err != nil {
		return err
	}
	members, err := r.store.GetMembers(r.ctx, r.runID, rep)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(members)+1)
	ids = append(ids, strconv.FormatInt(rep, 10))
	for _, m := range members {
		ids = append(ids, strconv.FormatInt(m, 10))
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(r.out, "%s %d (%d nodes)\n", cyan("component"), rep, len(ids))
	fmt.Fprintf(r.out, "  %s\n", strings.Join(ids, " "))
	return nil
}

// cmdRuns lists recent runs, marking the selected one.
func (r *REPL) cmdRuns(args []string) error {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("limit must be a positive integer")
		}
		limit = n
	}

	runs, err := r.store.ListRuns(r.ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(r.out, "No runs recorded")
		return nil
	}

	for _, run := range runs {
		marker := " "
		if run.ID == r.runID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %s  %d iterations  %d mapped  %s\n",
			marker, run.ID, statusColor(run.Status), run.Iterations, run.MappedNodes,
			run.StartedAt.Local().Format(time.DateTime))
	}
	return nil
}

// cmdUse switches the queried run.
func (r *REPL) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <run-id>")
	}
	run, err := r.store.GetRun(r.ctx, args[0])
	if err != nil {
		return err
	}
	if run.Status != types.RunConverged {
		return fmt.Errorf("run %s is %s; only converged runs have a mapping", run.ID, run.Status)
	}
	r.runID = run.ID
	fmt.Fprintf(r.out, "Querying run %s\n", run.ID)
	return nil
}

// cmdStatus shows the selected run and its per-round history.
func (r *REPL) cmdStatus(args []string) error {
	if r.runID == "" {
		return errNoRun
	}
	run, err := r.store.GetRun(r.ctx, r.runID)
	if err != nil {
		return err
	}
	stats, err := r.store.GetIterations(r.ctx, r.runID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Run"), run.ID)
	fmt.Fprintf(r.out, "  status:      %s\n", statusColor(run.Status))
	fmt.Fprintf(r.out, "  input edges: %d\n", run.InputEdges)
	fmt.Fprintf(r.out, "  mapped:      %d\n", run.MappedNodes)
	fmt.Fprintf(r.out, "  duration:    %s\n", run.Duration().Round(time.Millisecond))
	for _, s := range stats {
		fmt.Fprintf(r.out, "  round %-3d large=%d small=%d changes=%d (%s)\n",
			s.Iteration, s.LargeEdges, s.SmallEdges, s.Changes, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(r.out)
	return nil
}

func statusColor(s types.RunStatus) string {
	switch s {
	case types.RunConverged:
		return color.GreenString(string(s))
	case types.RunRunning:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}
