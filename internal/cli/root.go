package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"canopy/internal/format"
	"canopy/internal/store"
	"canopy/internal/tree"

	"github.com/spf13/cobra"
)

type App struct {
	Dir        string
	Defs       string
	PrettyJSON bool
	Format     string
}

// glogFlags are the go flags glog registers that the CLI exposes.
var glogFlags = []string{"v", "vmodule", "logtostderr", "alsologtostderr", "stderrthreshold", "log_dir"}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "canopy",
		Short:        "Canopy tree control server, terminal browser and state tools",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve every tree under ./trees with live reload
  canopy serve --watch

  # Browse a tree in the terminal
  canopy browse library

  # Inspect a definition file (shortcut for: canopy trees show library.yaml)
  canopy library.yaml
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("CANOPY_DIR", ""), "State directory holding canopy.sqlite (default: nearest .canopy)")
	cmd.PersistentFlags().StringVar(&app.Defs, "defs", envOr("CANOPY_DEFS", ""), "Directory of tree definition YAML files (default: trees/ next to the state dir)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("CANOPY_FORMAT", "json"), "Output format (json|yaml)")
	addGlogFlags(cmd)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newBrowseCmd(app))
	cmd.AddCommand(newTreesCmd(app))
	cmd.AddCommand(newSessionsCmd(app))
	cmd.AddCommand(newActivityCmd(app))

	return cmd
}

func addGlogFlags(cmd *cobra.Command) {
	if f := flag.CommandLine.Lookup("logtostderr"); f != nil && f.Value.String() == f.DefValue {
		_ = f.Value.Set("true")
		f.DefValue = "true"
	}
	for _, name := range glogFlags {
		if f := flag.CommandLine.Lookup(name); f != nil {
			cmd.PersistentFlags().AddGoFlag(f)
		}
	}
}

func resolveDir(app *App) (string, error) {
	if d := strings.TrimSpace(app.Dir); d != "" {
		return d, nil
	}
	d, err := store.DefaultDir()
	if err != nil {
		return "", err
	}
	app.Dir = d
	return d, nil
}

func resolveDefs(app *App) (string, error) {
	if d := strings.TrimSpace(app.Defs); d != "" {
		return d, nil
	}
	dir, err := resolveDir(app)
	if err != nil {
		return "", err
	}
	app.Defs = store.DefaultDefinitionsDir(dir)
	return app.Defs, nil
}

func loadCatalog(app *App, opts ...tree.Option) (*store.Catalog, error) {
	defs, err := resolveDefs(app)
	if err != nil {
		return nil, err
	}
	c := store.NewCatalog(defs, opts...)
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
