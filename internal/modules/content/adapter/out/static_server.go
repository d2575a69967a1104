package out

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	contentout "dashext/internal/modules/content/port/out"
	apperrors "dashext/internal/platform/errors"
	"dashext/internal/platform/safepath"
)

// HTTPStaticServer serves one directory read-only on a loopback address.
type HTTPStaticServer struct {
	log hclog.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr string
	done chan struct{}
}

func NewHTTPStaticServer(logger hclog.Logger) *HTTPStaticServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HTTPStaticServer{log: logger.Named("static")}
}

var _ contentout.StaticServer = (*HTTPStaticServer)(nil)

func (s *HTTPStaticServer) Start(_ context.Context, addr, root string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.addr, nil
	}
	if err := requireLoopback(addr); err != nil {
		return "", err
	}
	canonical, err := safepath.Canonical(root)
	if err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("%w: listen %s: %v", apperrors.ErrServerNotAvailable, addr, err)
	}
	srv := &http.Server{
		Handler:           NewFileHandler(canonical),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("static server stopped unexpectedly", "error", err)
		}
	}()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.done = done
	return s.addr, nil
}

func (s *HTTPStaticServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.addr, s.done = nil, "", nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	if err != nil {
		return fmt.Errorf("shutdown static server: %w", err)
	}
	return nil
}

func (s *HTTPStaticServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: server addr %q: %v", apperrors.ErrInvalidInput, addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: server addr %q is not loopback", apperrors.ErrInvalidInput, addr)
	}
	return nil
}

type fileHandler struct {
	root string
}

// NewFileHandler serves regular files under root. root must be canonical.
func NewFileHandler(root string) http.Handler {
	return fileHandler{root: root}
}

func (h fileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Path
	if strings.ContainsRune(raw, '\x00') || strings.Contains(raw, `\`) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if strings.HasPrefix(seg, ".") {
			http.NotFound(w, r)
			return
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if rel == "" {
		http.NotFound(w, r)
		return
	}
	full := filepath.Join(h.root, filepath.FromSlash(rel))
	if !safepath.Within(h.root, full) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !safepath.Within(h.root, resolved) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	f, err := os.Open(resolved)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
