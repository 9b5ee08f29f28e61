// Package tui implements `mumei inspect`, an interactive browser over a
// verification run's per-atom results and counter-examples: a
// liner.Liner readline loop, fatih/color for status highlighting, a
// history file under os.TempDir(), and a colon-prefixed command set
// dispatched by exact match on the first word rather than a parser (prefix
// matching is used only for tab completion). There is no
// expression language to evaluate here, only a fixed RunResult already
// computed by internal/verify to paginate through.
package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/sunholo/ailang/internal/verify"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

const historyFileName = ".mumei_inspect_history"

// Inspector browses one completed verification run.
type Inspector struct {
	run verify.RunResult

	// byName indexes run.Results by atom name for :show lookups; built
	// once in New rather than scanned linearly on every command.
	byName map[string]verify.Result
	names  []string // sorted, for :list and bare-index navigation
	cursor int
}

// New returns an Inspector over run.
func New(run verify.RunResult) *Inspector {
	insp := &Inspector{
		run:    run,
		byName: make(map[string]verify.Result, len(run.Results)),
	}
	for _, r := range run.Results {
		insp.byName[r.AtomName] = r
		insp.names = append(insp.names, r.AtomName)
	}
	sort.Strings(insp.names)
	return insp
}

// Start runs the interactive loop against out, reading commands via
// liner. in is accepted for symmetry with other Start(in, out) readers
// but liner reads directly from the controlling terminal.
func (insp *Inspector) Start(_ io.Reader, out io.Writer) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetMultiLineMode(false)

	historyFile := filepath.Join(os.TempDir(), historyFileName)
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	line.SetCompleter(func(s string) (c []string) {
		if !strings.HasPrefix(s, ":") {
			return nil
		}
		for _, cmd := range []string{":list", ":show", ":next", ":prev", ":failures", ":help", ":quit"} {
			if strings.HasPrefix(cmd, s) {
				c = append(c, cmd)
			}
		}
		return
	})

	insp.printSummary(out)
	fmt.Fprintln(out, dim("Type :help for commands, :quit to exit"))

	for {
		input, err := line.Prompt(insp.prompt())
		if err != nil {
			fmt.Fprintln(out, green("\nGoodbye!"))
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == ":quit" || input == ":q" {
			fmt.Fprintln(out, green("Goodbye!"))
			break
		}
		insp.dispatch(input, out)
	}

	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func (insp *Inspector) prompt() string {
	if len(insp.names) == 0 {
		return "mumei> "
	}
	return fmt.Sprintf("mumei[%d/%d]> ", insp.cursor+1, len(insp.names))
}

func (insp *Inspector) dispatch(input string, out io.Writer) {
	fields := strings.Fields(input)
	cmd := fields[0]
	switch {
	case cmd == ":help":
		insp.printHelp(out)
	case cmd == ":list":
		insp.printList(out)
	case cmd == ":failures":
		insp.printFailures(out)
	case cmd == ":next":
		insp.move(1, out)
	case cmd == ":prev":
		insp.move(-1, out)
	case cmd == ":show":
		if len(fields) < 2 {
			insp.showCursor(out)
			return
		}
		insp.show(fields[1], out)
	default:
		fmt.Fprintf(out, "%s: unknown command %q (try :help)\n", red("error"), cmd)
	}
}

func (insp *Inspector) move(delta int, out io.Writer) {
	if len(insp.names) == 0 {
		fmt.Fprintln(out, dim("no atoms in this run"))
		return
	}
	insp.cursor = (insp.cursor + delta + len(insp.names)) % len(insp.names)
	insp.showCursor(out)
}

func (insp *Inspector) showCursor(out io.Writer) {
	if len(insp.names) == 0 {
		fmt.Fprintln(out, dim("no atoms in this run"))
		return
	}
	insp.show(insp.names[insp.cursor], out)
}

func (insp *Inspector) show(name string, out io.Writer) {
	if idx, err := strconv.Atoi(name); err == nil {
		if idx < 1 || idx > len(insp.names) {
			fmt.Fprintf(out, "%s: index %d out of range\n", red("error"), idx)
			return
		}
		name = insp.names[idx-1]
	}
	r, ok := insp.byName[name]
	if !ok {
		fmt.Fprintf(out, "%s: no atom named %q in this run\n", red("error"), name)
		return
	}
	for i, n := range insp.names {
		if n == name {
			insp.cursor = i
			break
		}
	}

	status := green("PASSED")
	if !r.Passed {
		status = red("FAILED")
	}
	fmt.Fprintf(out, "%s %s  %s\n", bold(r.AtomName), status, dim(r.Duration.String()))
	if len(r.Reports) == 0 {
		fmt.Fprintln(out, dim("  no reports"))
		return
	}
	for _, rep := range r.Reports {
		marker := red("✗")
		if rep.Warning {
			marker = yellow("!")
		}
		fmt.Fprintf(out, "  %s [%s/%s] %s\n", marker, cyan(rep.Phase), rep.Code, rep.Message)
		if rep.Counterexample != nil {
			keys := make([]string, 0, len(rep.Counterexample))
			for k := range rep.Counterexample {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "      %s = %v\n", k, rep.Counterexample[k])
			}
		}
	}
}

func (insp *Inspector) printSummary(out io.Writer) {
	passed, failed := 0, 0
	for _, r := range insp.run.Results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	overall := green("PASSED")
	if !insp.run.Passed {
		overall = red("FAILED")
	}
	fmt.Fprintf(out, "%s  %d atoms, %s passed, %s failed\n",
		overall, len(insp.run.Results), green(strconv.Itoa(passed)), red(strconv.Itoa(failed)))
}

func (insp *Inspector) printList(out io.Writer) {
	for i, name := range insp.names {
		r := insp.byName[name]
		marker := green("ok")
		if !r.Passed {
			marker = red("FAIL")
		}
		fmt.Fprintf(out, "%3d  %-30s %s\n", i+1, name, marker)
	}
}

func (insp *Inspector) printFailures(out io.Writer) {
	any := false
	for _, name := range insp.names {
		if r := insp.byName[name]; !r.Passed {
			any = true
			insp.show(name, out)
		}
	}
	if !any {
		fmt.Fprintln(out, green("no failures in this run"))
	}
}

func (insp *Inspector) printHelp(out io.Writer) {
	fmt.Fprintln(out, dim(":list              list every atom in this run"))
	fmt.Fprintln(out, dim(":show <name|index>  show one atom's reports"))
	fmt.Fprintln(out, dim(":next / :prev       move the cursor and show"))
	fmt.Fprintln(out, dim(":failures           show every failing atom"))
	fmt.Fprintln(out, dim(":quit               exit"))
}
