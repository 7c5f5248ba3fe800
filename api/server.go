// Package api serves presets and quiz history over HTTP for dashboards
// and exports. Nothing here changes stored data.
package api

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"clap-trainer/debug"
	"clap-trainer/pattern"
	"clap-trainer/quiz"
	"clap-trainer/store"
)

// Server answers read-only queries over the stores
type Server struct {
	presets *store.Presets
	history *store.History

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func New(presets *store.Presets, history *store.History) *Server {
	return &Server{
		presets: presets,
		history: history,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Handler routes the API. Browsers from origins may call it; every
// origin when origins is empty.
func (s *Server) Handler(origins []string) http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/presets", s.HandlePresets).Methods("GET")
	router.HandleFunc("/presets/{id}", s.HandlePreset).Methods("GET")
	router.HandleFunc("/history", s.HandleHistory).Methods("GET")
	router.HandleFunc("/history/stats", s.HandleStats).Methods("GET")
	router.HandleFunc("/history/{id}", s.HandleRecord).Methods("GET")
	router.HandleFunc("/questions/{difficulty}", s.HandleQuestion).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(router)
}

// ListenAndServe serves Handler on addr
func (s *Server) ListenAndServe(addr string, origins []string) error {
	debug.Log("api", "listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler(origins))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Log("api", "encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// readable logs errors from stores that still returned usable data
func readable(err error) {
	if err != nil {
		debug.Log("api", "partial read: %v", err)
	}
}

func (s *Server) HandlePresets(w http.ResponseWriter, r *http.Request) {
	all, err := s.presets.All()
	readable(err)
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) HandlePreset(w http.ResponseWriter, r *http.Request) {
	pr, err := s.presets.Find(mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// HandleHistory lists records newest first. ?pattern= filters by pattern
// name and ?limit= caps the count.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := -1
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	var records []quiz.Record
	var err error
	if name := q.Get("pattern"); name != "" {
		records, err = s.history.ByPattern(name)
	} else {
		records, err = s.history.List()
	}
	readable(err)
	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) HandleRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	records, err := s.history.List()
	readable(err)
	for _, rec := range records {
		if rec.ID == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, store.ErrNotFound)
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.Statistics()
	readable(err)
	writeJSON(w, http.StatusOK, stats)
}

// HandleQuestion returns a random pattern of the given difficulty
func (s *Server) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, err := pattern.Generate(pattern.Difficulty(mux.Vars(r)["difficulty"]), s.rng)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
