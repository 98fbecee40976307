package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"idle-arena/internal/battle"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
)

// MaxIntegrityRange bounds one integrity request
const MaxIntegrityRange = 1 << 20

// Handler methods for routerHandlers

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"activeBattles": len(h.engine.ActiveBattles()),
	}
	if h.hub != nil {
		resp["observers"] = h.hub.ClientCount()
	}
	writeJSON(w, resp)
}

// handleListBattles lists live battle ids, or stored battles with ?status=
func (h *routerHandlers) handleListBattles(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("status")
	if name == "" {
		ids := h.engine.ActiveBattles()
		sort.Strings(ids)
		writeJSON(w, map[string]any{"active": ids})
		return
	}

	if h.browser == nil {
		writeError(w, http.StatusNotImplemented, "battle listing is not supported by this store")
		return
	}
	status, err := battle.ParseStatus(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	battles, err := h.browser.ListBattles(r.Context(), status)
	if err != nil {
		h.fail(w, err)
		return
	}
	if battles == nil {
		battles = []battle.Battle{}
	}
	writeJSON(w, battles)
}

func (h *routerHandlers) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetResult(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if snap.Result == nil {
		writeError(w, http.StatusNotFound, "battle has no result yet")
		return
	}
	writeJSON(w, snap.Result)
}

func (h *routerHandlers) handleGetLog(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		writeError(w, http.StatusNotImplemented, "combat log is not supported by this store")
		return
	}
	id := chi.URLParam(r, "id")
	// 404 for unknown battles rather than an empty log
	if _, err := h.engine.GetStatus(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	entries, err := h.browser.GetEvents(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []battle.LogEntry{}
	}
	writeJSON(w, entries)
}

func (h *routerHandlers) handleFrameStats(w http.ResponseWriter, r *http.Request) {
	last, err := h.journal.LastFrame(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"lastFrame": last,
		"journal":   h.journal.Stats(),
	})
}

// recordJSON is a record as observers see it. Ids are strings since
// 64-bit hashes don't survive JavaScript numbers.
type recordJSON struct {
	Type    string `json:"type"`
	Lane    string `json:"lane"`
	Frame   uint32 `json:"frame"`
	Actor   string `json:"actor"`
	Target  string `json:"target,omitempty"`
	Payload any    `json:"payload"`
}

func toRecordJSON(rec event.Record) recordJSON {
	out := recordJSON{
		Type:    rec.Type.String(),
		Lane:    rec.Priority.String(),
		Frame:   rec.Frame,
		Actor:   strconv.FormatUint(rec.Actor, 16),
		Payload: event.DecodePayload(rec),
	}
	if rec.Target != 0 {
		out.Target = strconv.FormatUint(rec.Target, 16)
	}
	return out
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := parseFrame(chi.URLParam(r, "frame"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.journal.LoadFrame(r.Context(), frame)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]recordJSON, len(records))
	for i, rec := range records {
		out[i] = toRecordJSON(rec)
	}
	writeJSON(w, map[string]any{
		"frame":   frame,
		"records": out,
		"summary": SummarizeFrame(frame, records),
	})
}

func (h *routerHandlers) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	from, err := parseFrame(chi.URLParam(r, "from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseFrame(chi.URLParam(r, "to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "from must not exceed to")
		return
	}
	if to-from >= MaxIntegrityRange {
		writeError(w, http.StatusBadRequest, "range too large")
		return
	}

	report, err := h.journal.ValidateFrameIntegrity(r.Context(), from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, report)
}

// fail maps domain errors onto status codes
func (h *routerHandlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, battle.ErrNotFound), errors.Is(err, eventlog.ErrFrameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, battle.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("❌ API error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFrame(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.New("frame must be an unsigned 32-bit integer")
	}
	return uint32(v), nil
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
