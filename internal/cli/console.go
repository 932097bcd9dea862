package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bolasblack/multihack/internal/sync"
	"github.com/bolasblack/multihack/internal/util"
)

// sessionControl is the part of sync.Controller the console drives.
type sessionControl interface {
	ForceSync() error
	JoinCall() error
	LeaveCall() error
	FocusDocument(absPath string) error
	State() (sync.Status, error)
}

// ConsoleCommand describes one command of the interactive session console.
type ConsoleCommand struct {
	Name    string
	Args    string
	Summary string
}

// Usage returns the command as typed, e.g. "open <path>".
func (c ConsoleCommand) Usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

var consoleCommands = []ConsoleCommand{
	{Name: "sync", Summary: "ask the room for a fresh copy of the project"},
	{Name: "call", Summary: "join the voice call"},
	{Name: "hangup", Summary: "leave the voice call"},
	{Name: "open", Args: "<path>", Summary: "make <path> the focused document"},
	{Name: "status", Summary: "show the session"},
	{Name: "help", Summary: "list these commands"},
	{Name: "quit", Summary: "leave the room (also: exit)"},
}

// ConsoleCommands lists the commands accepted by the console of "mhk start".
func ConsoleCommands() []ConsoleCommand {
	return append([]ConsoleCommand(nil), consoleCommands...)
}

func printConsoleHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, "commands:")
	for _, c := range consoleCommands {
		_, _ = fmt.Fprintf(w, "  %-13s %s\n", c.Usage(), c.Summary)
	}
}

// runConsole reads commands from r until EOF, "quit" or ctx is done.
// It returns true when the user asked to quit.
func runConsole(ctx context.Context, r io.Reader, w io.Writer, dir string, ctrl sessionControl) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if quit := runConsoleCommand(w, dir, ctrl, line); quit {
				return true
			}
		}
	}
}

func runConsoleCommand(w io.Writer, dir string, ctrl sessionControl, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "quit", "exit":
		return true
	case "sync":
		if err = ctrl.ForceSync(); err == nil {
			util.ProgressStep(w, "requested project from the room\n")
		}
	case "call":
		if err = ctrl.JoinCall(); err == nil {
			util.ProgressDone(w, "joined call\n")
		}
	case "hangup":
		if err = ctrl.LeaveCall(); err == nil {
			util.ProgressDone(w, "left call\n")
		}
	case "open":
		if len(fields) != 2 {
			_, _ = fmt.Fprintln(w, "usage: open <path>")
			return false
		}
		err = ctrl.FocusDocument(resolveOpenPath(dir, fields[1]))
	case "status":
		var st sync.Status
		if st, err = ctrl.State(); err == nil {
			printSessionStatus(w, st)
		}
	case "help":
		printConsoleHelp(w)
	default:
		_, _ = fmt.Fprintf(w, "unknown command %q\n", fields[0])
		printConsoleHelp(w)
	}
	if err != nil {
		util.ProgressWarn(w, "%s: %v\n", fields[0], err)
	}
	return false
}

func printSessionStatus(w io.Writer, st sync.Status) {
	_, _ = fmt.Fprintf(w, "Phase:    %s\n", st.Phase)
	_, _ = fmt.Fprintf(w, "Room:     %s\n", st.Room)
	_, _ = fmt.Fprintf(w, "Relay:    %s\n", st.Hostname)
	_, _ = fmt.Fprintf(w, "Peer:     %s\n", st.PeerID)
	_, _ = fmt.Fprintf(w, "In call:  %t\n", st.InCall)
	if st.ActivePath != "" {
		_, _ = fmt.Fprintf(w, "Editing:  %s\n", st.ActivePath)
	}
	if len(st.Pending) > 0 {
		_, _ = fmt.Fprintf(w, "Waiting:  %s\n", strings.Join(st.Pending, ", "))
	}
}
