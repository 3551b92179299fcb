package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim"
	"github.com/dinebot-sim/dinebot-sim/sim/scenario"
	"github.com/dinebot-sim/dinebot-sim/store"
)

const maxScenarioBytes = 1 << 20

// apiCreateRun runs a posted YAML scenario against the served knowledge base, stores the
// report and fans it out. ?seed= overrides the scenario seed.
func (h *Handlers) apiCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScenarioBytes))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	sc, err := scenario.Parse(body)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s := r.URL.Query().Get("seed"); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.jsonError(w, "invalid seed", http.StatusBadRequest)
			return
		}
		sc.Seed = seed
	}
	if err := sc.Validate(); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deps := h.deps
	deps.Knowledge, _ = h.knowledge()
	rep, err := sc.Run(r.Context(), deps)
	if err != nil {
		if errors.Is(err, sim.ErrRunCancelled) {
			logrus.Warnf("posted run abandoned: %v", err)
			return
		}
		logrus.Warnf("posted scenario %q: %v", sc.Name, err)
		h.jsonError(w, "scenario could not be run", http.StatusUnprocessableEntity)
		return
	}

	if h.db != nil {
		if err := h.db.SaveReport(r.Context(), rep); err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if h.publisher != nil {
		if err := h.publisher.PublishReport(r.Context(), rep); err != nil {
			logrus.Warnf("run %s: %v", rep.RunID, err)
		}
	}
	h.jsonStatus(w, http.StatusCreated, rep)
}

func (h *Handlers) apiListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.db.ListRuns(r.Context(), limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	h.jsonOK(w, runs)
}

func (h *Handlers) apiGetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, err := h.db.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonOK(w, run)
}

func (h *Handlers) apiRunDeliveries(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetRun(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}
	deliveries, err := h.db.Deliveries(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonOK(w, deliveries)
}

func (h *Handlers) apiRunTrajectories(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetRun(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}
	trajectories, err := h.db.Trajectories(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonOK(w, trajectories)
}

func (h *Handlers) apiDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if err := h.db.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) requireStore(w http.ResponseWriter) bool {
	if h.db == nil {
		h.jsonError(w, "run store not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *Handlers) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.jsonError(w, err.Error(), http.StatusInternalServerError)
}
