package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

// NewHTTPHandler builds the introspection surface for tree: GET on any
// path returns that node's Content as JSON, a practical substitute for the
// FUSE mount in environments without it. The mount itself
// (read(2) on a leaf file) is the external collaborator and isn't
// implemented here.
func NewHTTPHandler(tree *Tree) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			path := strings.TrimPrefix(req.URL.Path, "/")
			content, ok := tree.Read(path)
			if !ok {
				http.NotFound(w, req)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(contentToJSON(content)); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
	})

	return handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, p handlers.LogFormatterParams) {
			flog.Debugf("telemetry: %s %s (%d) %dms", p.Request.Method, p.URL.RequestURI(),
				p.StatusCode, time.Since(p.TimeStamp).Milliseconds())
	})
}

func contentToJSON(c Content) any {
	switch v := c.(type) {
	case Scalar:
		return float64(v)
	case ScalarWithUnit:
		return map[string]any{"value": v.Value, "unit": v.Unit}
	case Dict:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = contentToJSON(child)
		}
		return out
	default:
		return nil
	}
}

// Serve starts an HTTP server on addr in a background goroutine and returns
// it without blocking; the caller stops it with Close or Shutdown. Listener
// errors other than http.ErrServerClosed are logged.
func Serve(addr string, tree *Tree) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: NewHTTPHandler(tree),
		ReadTimeout: 10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			flog.Errorf("telemetry: http server on %s: %v", addr, err)
		}
	}()
	return srv
}
