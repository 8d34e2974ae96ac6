// Package console is the cobra-based CLI surface exposed by the lifecycle
// coordinator, using a build-info-derived version string and an OsExit
// indirection for testability.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lbbs/loader"
)

// OsExit is indirected so tests can observe an attempted process exit
// instead of killing the test binary.
var OsExit = func(code int) {}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(devel)"
	}
	return info.Main.Version
}

// NewRootCommand builds the "bbsctl" command tree around l. Operations
// return promptly with a status code rather than waiting for deferred
// reloads.
func NewRootCommand(l *loader.Loader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "bbsctl",
		Short:   "control the BBS module loader",
		Version: version(),
	}

	root.AddCommand(
		newLoadCmd(l, out),
		newUnloadCmd(l, out),
		newReloadCmd(l, out),
		newModulesCmd(l, out),
		newConsoleCmd(l, out),
	)
	return root
}

func newLoadCmd(l *loader.Loader, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "load a module by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := l.Load(cmd.Context(), args[0])
			printResult(out, res)
			if err != nil {
				OsExit(1)
				return err
			}
			return nil
		},
	}
}

func newUnloadCmd(l *loader.Loader, out io.Writer) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unload <name>",
		Short: "unload a module by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if force {
				ok, err := confirm(fmt.Sprintf("unload %q? (refused while it has live dependents)", args[0]))
				if err != nil || !ok {
					return err
				}
			}
			res, err := l.Unload(cmd.Context(), args[0])
			printResult(out, res)
			if err != nil {
				OsExit(1)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "confirm", false, "prompt before unloading")
	return cmd
}

func newReloadCmd(l *loader.Loader, out io.Writer) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "reload <name>",
		Short: "reload a module by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := l.Reload(cmd.Context(), args[0], queue)
			printResult(out, res)
			if err != nil && !errors.Is(err, loader.ErrReloadQueued) {
				OsExit(1)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "defer the reload until refcount reaches zero")
	return cmd
}

func newModulesCmd(l *loader.Loader, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "list known modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.AppendHeader(table.Row{"NAME", "STATE", "REFCOUNT", "DESCRIPTION"})
			for _, info := range l.Snapshot() {
				t.AppendRow(table.Row{info.Name, info.State, info.Refcount, info.Description})
			}
			t.Render()
			return nil
		},
	}
}

func newConsoleCmd(l *loader.Loader, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), l, out)
		},
	}
}

func runInteractive(ctx context.Context, l *loader.Loader, out io.Writer) error {
	for {
		var action string
		if err := survey.AskOne(&survey.Select{
			Message: "choose an action",
			Options: []string{"load", "unload", "reload", "modules", "quit"},
		}, &action); err != nil {
			return err
		}
		if action == "quit" {
			return nil
		}
		if action == "modules" {
			if err := l.List(out); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			continue
		}

		var name string
		if err := survey.AskOne(&survey.Input{Message: "module name:"}, &name); err != nil {
			return err
		}

		var res *loader.OperationResult
		var err error
		switch action {
		case "load":
			res, err = l.Load(ctx, name)
		case "unload":
			res, err = l.Unload(ctx, name)
		case "reload":
			res, err = l.Reload(ctx, name, true)
		}
		printResult(out, res)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func confirm(message string) (bool, error) {
	var ok bool
	err := survey.AskOne(&survey.Confirm{Message: message}, &ok)
	return ok, err
}

func printResult(out io.Writer, res *loader.OperationResult) {
	if res == nil {
		return
	}
	for _, msg := range res.Messages {
		fmt.Fprintln(out, msg)
	}
}
