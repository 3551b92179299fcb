// Package web serves the decision service and the run report API over HTTP.
package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/dinebot-sim/dinebot-sim/publish"
	"github.com/dinebot-sim/dinebot-sim/sim/decision"
	"github.com/dinebot-sim/dinebot-sim/sim/scenario"
	"github.com/dinebot-sim/dinebot-sim/store"
)

// Options wires the router's collaborators. Only Knowledge is required.
type Options struct {
	Knowledge *decision.KnowledgeBase
	TopK      int

	DB        *store.DB             // nil disables the run API
	Publisher *publish.Publisher    // nil disables report fan-out
	Redis     redis.UniversalClient // optional write-through for knowledge updates
	RedisKey  string                // list that PUT /api/knowledge replaces
	Deps      scenario.Deps         // posted scenarios; Knowledge is always the served base
	TokenHash string                // bcrypt hash guarding mutating routes; empty = open
}

type Handlers struct {
	mu    sync.RWMutex
	kb    *decision.KnowledgeBase
	rules *decision.RulesProvider
	topK  int

	db        *store.DB
	publisher *publish.Publisher
	redis     redis.UniversalClient
	redisKey  string
	deps      scenario.Deps
	tokenHash []byte
}

func NewRouter(opts Options) http.Handler {
	h := &Handlers{
		topK:      opts.TopK,
		db:        opts.DB,
		publisher: opts.Publisher,
		redis:     opts.Redis,
		redisKey:  opts.RedisKey,
		deps:      opts.Deps,
	}
	if opts.TokenHash != "" {
		h.tokenHash = []byte(opts.TokenHash)
	}
	h.setKnowledge(opts.Knowledge)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Post("/decide", h.apiDecide)
		r.Get("/knowledge", h.apiListKnowledge)
		r.Get("/runs", h.apiListRuns)
		r.Get("/runs/{id}", h.apiGetRun)
		r.Get("/runs/{id}/deliveries", h.apiRunDeliveries)
		r.Get("/runs/{id}/trajectories", h.apiRunTrajectories)

		r.Group(func(r chi.Router) {
			r.Use(h.requireToken)
			r.Post("/runs", h.apiCreateRun)
			r.Delete("/runs/{id}", h.apiDeleteRun)
			r.Put("/knowledge", h.apiReplaceKnowledge)
		})
	})
	return r
}

func (h *Handlers) setKnowledge(kb *decision.KnowledgeBase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kb = kb
	h.rules = decision.NewRulesProvider(kb, h.topK, "", 0)
}

func (h *Handlers) knowledge() (*decision.KnowledgeBase, *decision.RulesProvider) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.kb, h.rules
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	kb, _ := h.knowledge()
	h.jsonOK(w, map[string]any{
		"status":    "ok",
		"store":     h.db != nil,
		"messaging": h.publisher != nil,
		"knowledge": kb.Len(),
	})
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": msg})
}
