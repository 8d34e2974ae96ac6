// Command bbsmod scaffolds a new plugin-buildable module skeleton,
// grounded on cmd/modcli's scaffold generator.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const scaffoldTemplate = `package main

import (
	"context"

	"github.com/lbbs/loader/bbsmodule"
)

func load(ctx context.Context, self bbsmodule.Handle) error {
	self.Logger().Info("%[1]s loaded")
	return nil
}

func unload(ctx context.Context, self bbsmodule.Handle) error {
	self.Logger().Info("%[1]s unloaded")
	return nil
}

// BBSRegister is looked up by name and invoked by the loader's backend
// immediately after plugin.Open succeeds.
func BBSRegister(r bbsmodule.Registrar) error {
	_, err := r.Register(bbsmodule.Descriptor{
		Name:        "%[1]s",
		Description: "%[2]s",
		Entrypoints: bbsmodule.Entrypoints{
			Load:   load,
			Unload: unload,
		},
	})
	return err
}
`

func main() {
	root := &cobra.Command{
		Use:   "bbsmod",
		Short: "scaffold a new BBS module",
	}
	root.AddCommand(newNewCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bbsmod:", err)
		os.Exit(1)
	}
}

func newNewCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "new <name> <dir>",
		Short: "write a module scaffold implementing BBSRegister",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dir := strings.ToLower(args[0]), args[1]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			content := fmt.Sprintf(scaffoldTemplate, name, description)
			return os.WriteFile(filepath.Join(dir, "module.go"), []byte(content), 0o644)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "human-readable module description")
	return cmd
}
