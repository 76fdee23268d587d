package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"canopy/internal/store"
	"canopy/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var watch bool
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree definitions over HTTP",
		Long: strings.TrimSpace(`
Serve every tree definition over HTTP.

Each browser session keeps its own selection, expansion and row order. State
is saved to canopy.sqlite in the state directory after every request unless
--read-only is set. Opened items and reorders are appended to the activity log.
`),
		Example: strings.TrimSpace(`
# Serve ./trees on localhost, reloading when a definition changes
canopy serve --watch

# Serve a fixture directory without writing any state
canopy --defs ./fixtures serve --read-only --addr :3336
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				return writeErr(cmd, errors.New("serve: missing --addr"))
			}
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !readOnly {
				if err := (store.Store{Dir: dir}).Ensure(); err != nil {
					return writeErr(cmd, err)
				}
			}

			cfg := web.ServerConfig{Addr: listenAddr, Dir: dir, ReadOnly: readOnly}
			catalog, err := loadCatalog(app, web.TreeOptions(cfg)...)
			if err != nil {
				return writeErr(cmd, err)
			}
			srv, err := web.NewServer(cfg, catalog)
			if err != nil {
				return writeErr(cmd, err)
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				w, err := store.NewWatcher(catalog, store.WithReloadHook(func(gen uint64, err error) {
					if err != nil {
						glog.Warningf("reload definitions: %v", err)
						return
					}
					glog.Infof("definitions reloaded (generation %d)", gen)
					srv.NotifyReload()
				}))
				if err != nil {
					return writeErr(cmd, err)
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						glog.Errorf("definitions watcher stopped: %v", err)
					}
				}()
			}

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}
			actualAddr := ln.Addr().String()
			url := "http://" + actualAddr + "/trees"

			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      actualAddr,
					"url":       url,
					"dir":       dir,
					"defs":      catalog.Dir(),
					"trees":     catalog.IDs(),
					"watch":     watch,
					"readOnly":  readOnly,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
				"_hints": []string{"open " + url},
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "Canopy serving %d tree(s) at %s\n", len(catalog.IDs()), url)

			return srv.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("CANOPY_ADDR", "127.0.0.1:3336"), "Bind address (host:port or :port)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload definitions when files in --defs change")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Do not persist session state or activity")
	return cmd
}
