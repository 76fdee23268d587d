package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/starfederation/datastar-go/datastar"

	"canopy/internal/store"
	"canopy/internal/tree"
)

//go:embed templates/*.html static/*.js static/*.css
var assetsFS embed.FS

type ServerConfig struct {
	Addr string
	// Dir is the state directory holding the SQLite database and the cookie
	// signing key. Empty keeps sessions in memory only.
	Dir string
	// ReadOnly serves and reconciles trees without persisting anything.
	ReadOnly bool
}

type Server struct {
	cfg      ServerConfig
	catalog  *store.Catalog
	store    store.Store
	tmpl     *template.Template
	secret   []byte
	sessions *sessionRegistry
	hub      *reloadHub
}

func NewServer(cfg ServerConfig, catalog *store.Catalog) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if catalog == nil {
		return nil, errors.New("web: catalog is nil")
	}

	secret, err := loadOrInitSecretKey(cfg.Dir, cfg.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("web: session key: %w", err)
	}
	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"trim": strings.TrimSpace,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		catalog:  catalog,
		store:    store.Store{Dir: cfg.Dir},
		tmpl:     tmpl,
		secret:   secret,
		sessions: newSessionRegistry(),
		hub:      newReloadHub(),
	}, nil
}

func (s *Server) persistent() bool { return s.cfg.Dir != "" }

// NotifyReload pushes fresh tree fragments to every open event stream. Call it
// after the catalog was reloaded.
func (s *Server) NotifyReload() {
	descriptions.forget()
	s.hub.broadcast()
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /static/app.js", s.handleAppJS)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /trees", s.handleTrees)
	mux.HandleFunc("GET /trees/{treeId}", s.handleTreePage)
	mux.HandleFunc("POST /trees/{treeId}", s.handleTreeSubmit)
	mux.HandleFunc("GET /trees/{treeId}/open", s.handleTreeOpen)
	mux.HandleFunc("POST /trees/{treeId}/open", s.handleTreeOpen)
	mux.HandleFunc("GET /trees/{treeId}/state", s.handleTreeState)
	mux.HandleFunc("GET /trees/{treeId}/events", s.handleTreeEvents)
	mux.HandleFunc("POST /session/reset", s.handleSessionReset)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/app.css", "text/css; charset=utf-8")
}

func (s *Server) handleAppJS(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/app.js", "application/javascript; charset=utf-8")
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name, contentType string) {
	b, err := assetsFS.ReadFile(name)
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/trees", http.StatusSeeOther)
}

func (s *Server) handleTrees(w http.ResponseWriter, r *http.Request) {
	type treeLink struct {
		ID    string
		Title string
		URL   string
	}
	var links []treeLink
	for _, id := range s.catalog.IDs() {
		def, _ := s.catalog.Definition(id)
		title := strings.TrimSpace(def.Title)
		if title == "" {
			title = id
		}
		links = append(links, treeLink{ID: id, Title: title, URL: treeURL(id)})
	}
	s.writeHTMLTemplate(w, "trees.html", map[string]any{
		"Now":   time.Now().Format(time.RFC3339),
		"Trees": links,
	})
}

// handleTreePage renders the tree. A targeted request for this tree is an
// image download and is answered with the image alone.
func (s *Server) handleTreePage(w http.ResponseWriter, r *http.Request) {
	s.runTurn(w, r, func(t *tree.Tree, form url.Values) (bool, error) {
		return form.Get(tree.ParamTarget) == t.TargetID(), nil
	}, func(t *tree.Tree, st *tree.State, _ tree.Outcome) {
		s.writePage(w, t, st)
	})
}

// handleTreeSubmit reconciles a posted tree form and renders the result.
func (s *Server) handleTreeSubmit(w http.ResponseWriter, r *http.Request) {
	s.runTurn(w, r, func(*tree.Tree, url.Values) (bool, error) {
		return true, nil
	}, func(t *tree.Tree, st *tree.State, _ tree.Outcome) {
		if isDatastarRequest(r) {
			s.patchTree(w, r, t, st)
			return
		}
		s.writePage(w, t, st)
	})
}

// handleTreeOpen services an open-item request. Datastar clients get the tree
// fragment patched over SSE; ?fragment=1 returns the bare fragment.
func (s *Server) handleTreeOpen(w http.ResponseWriter, r *http.Request) {
	s.runTurn(w, r, func(t *tree.Tree, form url.Values) (bool, error) {
		if strings.TrimSpace(form.Get(tree.ParamItem)) == "" {
			return false, &tree.ProtocolError{Op: "open", Reason: "no item id provided"}
		}
		if form.Get(tree.ParamTrigger) == "" {
			form.Set(tree.ParamTrigger, t.ID())
		}
		return true, nil
	}, func(t *tree.Tree, st *tree.State, _ tree.Outcome) {
		switch {
		case isDatastarRequest(r):
			s.patchTree(w, r, t, st)
		case r.Form.Get("fragment") != "":
			s.writeHTMLTemplate(w, "tree_fragment", s.treeViewModel(t, st))
		default:
			s.writePage(w, t, st)
		}
	})
}

func (s *Server) handleTreeState(w http.ResponseWriter, r *http.Request) {
	s.runTurn(w, r, func(*tree.Tree, url.Values) (bool, error) {
		return false, nil
	}, func(t *tree.Tree, st *tree.State, _ tree.Outcome) {
		out := map[string]any{
			"treeId":   t.ID(),
			"selected": st.Selected(),
			"expanded": st.Expanded(),
			"value":    st.ValueString(),
		}
		if root := st.CustomTree(); root != nil {
			out["custom"] = root
		}
		b, err := json.Marshal(out)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(b)
	})
}

// handleTreeEvents streams a fresh tree fragment whenever the catalog reloads.
func (s *Server) handleTreeEvents(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("treeId"))
	if _, _, ok := s.catalog.Tree(id); !ok {
		http.NotFound(w, r)
		return
	}
	sess, err := s.sessionFor(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	release := s.sessions.hold(sess)
	defer release()
	ch, cancel := s.hub.subscribe()
	defer cancel()
	sse := datastar.NewSSE(w, r)

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			t, gen, ok := s.catalog.Tree(id)
			if !ok {
				_ = sse.ExecuteScript(fmt.Sprintf(`console.warn(%q)`, "tree "+id+" was removed"))
				continue
			}
			html, err := s.renderLocked(sse.Context(), sess, t, gen)
			if err != nil {
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
				continue
			}
			_ = sse.PatchElements(html, datastar.WithSelector(treeSelector(t.ID())), datastar.WithMode(datastar.ElementPatchModeOuter))
		}
	}
}

// handleSessionReset drops the caller's tree states from memory and from the
// store. The session id itself is kept.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess.mu.Lock()
	s.sessions.forget(sess.id)
	sess.mu.Unlock()

	if s.persistent() && !s.cfg.ReadOnly {
		_, err := s.store.DeleteSession(r.Context(), sess.id)
		var nf store.NotFoundError
		if err != nil && !errors.As(err, &nf) {
			glog.Warningf("session %s: reset: %v", sess.id, err)
		}
	}
	http.Redirect(w, r, "/trees", http.StatusSeeOther)
}

func (s *Server) renderLocked(ctx context.Context, sess *session, t *tree.Tree, gen uint64) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := s.stateFor(WithSessionID(ctx, sess.id), sess, t, gen)
	defer st.EndTurn()
	return s.renderTemplate("tree_fragment", s.treeViewModel(t, st))
}

// runTurn runs one request turn for the tree named in the path. prepare sees
// the parsed form and decides whether the reconciler runs; respond produces
// the response while the session is still locked, before the turn ends.
func (s *Server) runTurn(
	w http.ResponseWriter,
	r *http.Request,
	prepare func(t *tree.Tree, form url.Values) (bool, error),
	respond func(t *tree.Tree, st *tree.State, out tree.Outcome),
) {
	id := strings.TrimSpace(r.PathValue("treeId"))
	t, gen, ok := s.catalog.Tree(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	reconcile, err := prepare(t, r.Form)
	if err != nil {
		s.writeTurnError(w, t.ID(), err)
		return
	}
	sess, err := s.sessionFor(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx := WithSessionID(r.Context(), sess.id)
	st := s.stateFor(ctx, sess, t, gen)
	defer st.EndTurn()

	var out tree.Outcome
	if reconcile {
		var q tree.Queue
		out, err = t.HandleRequest(ctx, st, tree.Values(r.Form), &q)
		if err != nil {
			s.writeTurnError(w, t.ID(), err)
			return
		}
		if n := q.Drain(); n > 0 && glog.V(2) {
			glog.Infof("session %s: tree %s ran %d deferred actions", sess.id, t.ID(), n)
		}
		if out.Escape != nil {
			writeEscape(w, r, out.Escape)
			return
		}
		s.saveState(ctx, sess, t, st)
	}
	respond(t, st, out)
}

// writeTurnError answers protocol violations with a generic 400; the detail
// only goes to the log.
func (s *Server) writeTurnError(w http.ResponseWriter, treeID string, err error) {
	var pe *tree.ProtocolError
	if errors.As(err, &pe) {
		glog.Warningf("tree %s: rejected request: %v", treeID, err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	glog.Errorf("tree %s: %v", treeID, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeEscape(w http.ResponseWriter, r *http.Request, esc *tree.Escape) {
	ct := strings.TrimSpace(esc.MimeType)
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(esc.Data)))
	if r.Form.Get(tree.ParamCacheKey) != "" {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(esc.Data)
}

func (s *Server) patchTree(w http.ResponseWriter, r *http.Request, t *tree.Tree, st *tree.State) {
	html, err := s.renderTemplate("tree_fragment", s.treeViewModel(t, st))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sse := datastar.NewSSE(w, r)
	_ = sse.PatchElements(html, datastar.WithSelector(treeSelector(t.ID())), datastar.WithMode(datastar.ElementPatchModeOuter))
	_ = sse.MarshalAndPatchSignals(map[string]any{
		"treeValue": st.ValueString(),
		"treeOpen":  st.PendingOpenID(),
	})
}

func (s *Server) writePage(w http.ResponseWriter, t *tree.Tree, st *tree.State) {
	s.writeHTMLTemplate(w, "tree.html", map[string]any{
		"Now":  time.Now().Format(time.RFC3339),
		"Tree": s.treeViewModel(t, st),
	})
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func isDatastarRequest(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Datastar-Request")), "true")
}

func treeURL(id string) string { return "/trees/" + url.PathEscape(id) }

func treeSelector(id string) string { return "#tree-" + id }
