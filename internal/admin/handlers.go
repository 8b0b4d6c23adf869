package admin

import (
	"context"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"postpilot/internal/storage"
)

// Backend is the process context the API drives.
type Backend interface {
	AllPosts(ctx context.Context) ([]storage.Post, error)
	Logs() []string
	Status(ctx context.Context) (any, error)
	GenerateAndSchedule(ctx context.Context) (any, error)
	RunDispatchCycle(ctx context.Context) (any, error)
	// StartBackgroundLoops reports whether this call started the loops.
	StartBackgroundLoops(ctx context.Context) (bool, error)
}

// Handler builds the routed, authenticated API for cfg.
func (s *Service) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) }

	mux.HandleFunc("GET /healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("GET /api/posts", wrap(func(w http.ResponseWriter, r *http.Request) {
		posts, err := s.backend.AllPosts(r.Context())
		respond(w, map[string]any{"posts": posts}, err)
	}))
	mux.HandleFunc("GET /api/logs", wrap(func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{"logs": s.backend.Logs()}, nil)
	}))
	mux.HandleFunc("GET /api/status", wrap(func(w http.ResponseWriter, r *http.Request) {
		st, err := s.backend.Status(r.Context())
		respond(w, st, err)
	}))
	mux.HandleFunc("POST /api/generate", wrap(func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.backend.GenerateAndSchedule(r.Context())
		respond(w, rep, err)
	}))
	mux.HandleFunc("POST /api/dispatch", wrap(func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.backend.RunDispatchCycle(r.Context())
		respond(w, sum, err)
	}))
	mux.HandleFunc("POST /api/start", wrap(func(w http.ResponseWriter, r *http.Request) {
		started, err := s.backend.StartBackgroundLoops(r.Context())
		respond(w, map[string]bool{"started": started}, err)
	}))

	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

func respond(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
