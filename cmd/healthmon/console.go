package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/denster32/HealthAI-2030-sub022/internal/control"
)

var consoleActions = map[string]action{
	"status":        statusAction,
	"stats":         statsAction,
	"alerts":        alertsAction,
	"ack":           ackAction,
	"intervene":     interveneAction,
	"outcome":       outcomeAction,
	"interventions": interventionsAction,
	"suspend":       suspendAction,
	"resume":        resumeAction,
	"start":         lifecycleAction(control.CommandStart),
	"stop":          lifecycleAction(control.CommandStop),
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for a running daemon",
	Long: `Open an interactive console connected to the daemon's control socket.
Every client command (status, alerts, ack, intervene, ...) is available;
type 'help' for the list and 'exit' or Ctrl+D to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(control.NewClient(socketPath()))
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func consoleCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(consoleActions)+2)
	for _, name := range consoleNames() {
		items = append(items, readline.PcItem(name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func consoleNames() []string {
	names := make([]string, 0, len(consoleActions))
	for name := range consoleActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runConsole(client *control.Client) error {
	prompt := color.New(color.FgCyan).SprintFunc()("healthmon> ")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		AutoComplete:      consoleCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s. Type 'help' for commands.\n", socketPath())
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		out, err := dispatch(client, line)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stdout(), "%s %v\n", red("Error:"), err)
			continue
		}
		fmt.Fprint(rl.Stdout(), out)
	}
}

// dispatch runs one console line. io.EOF means the user asked to leave.
func dispatch(client *control.Client, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "exit", "quit":
		return "", io.EOF
	case "help":
		return "Commands: " + strings.Join(consoleNames(), ", ") + ", exit\n", nil
	}
	fn, ok := consoleActions[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q (try 'help')", name)
	}
	if name == "intervene" && len(args) > 2 {
		// Everything after the kind is the reason
		args = []string{args[0], strings.Join(args[1:], " ")}
	}
	return fn(client, args)
}
