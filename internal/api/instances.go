package api

import (
	"net/http"
	"time"

	"github.com/irisett-go/irisett/internal/activemonitor"
)

type instanceBody struct {
	DefinitionID int64             `json:"definition_id" validate:"required"`
	Arguments    map[string]string `json:"arguments"`
}

type enabledBody struct {
	Enabled bool `json:"enabled"`
}

type argsBody struct {
	Arguments map[string]string `json:"arguments"`
}

func (h *Handlers) listInstances(w http.ResponseWriter, r *http.Request) {
	insts := h.instances.All()
	out := make([]activemonitor.Snapshot, 0, len(insts))
	for _, inst := range insts {
		snap, ok := h.instances.Snapshot(inst.Row.ID)
		if ok {
			out = append(out, snap)
		}
	}
	sendJSON(w, http.StatusOK, out)
}

func (h *Handlers) getInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	snap, found := h.instances.Snapshot(id)
	if !found {
		sendError(w, http.StatusNotFound, "unknown monitor instance id")
		return
	}
	sendJSON(w, http.StatusOK, snap)
}

func (h *Handlers) createInstance(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAndValidate[instanceBody](w, r)
	if !ok {
		return
	}
	if _, found := h.definitions.Get(body.DefinitionID); !found {
		sendError(w, http.StatusBadRequest, "unknown definition id")
		return
	}
	if err := h.definitions.ValidateArgs(body.DefinitionID, body.Arguments, false); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.instances.Create(r.Context(), body.DefinitionID, body.Arguments, 180*time.Second)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.scheduler != nil {
		h.scheduler.Schedule(id, time.Now())
	}
	sendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) deleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if h.instances.Get(id) == nil {
		sendError(w, http.StatusNotFound, "unknown monitor instance id")
		return
	}
	h.tmplCache.Flush(id)
	// Purges immediately if the instance is idle; if a check is in
	// flight, the purge is deferred until that run's own completion.
	if err := h.instances.Delete(r.Context(), id); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusAccepted, map[string]string{"status": "deletion pending"})
}

func (h *Handlers) runInstanceNow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if h.instances.Get(id) == nil {
		sendError(w, http.StatusNotFound, "unknown monitor instance id")
		return
	}
	h.instances.ScheduleImmediately(id)
	if h.scheduler != nil {
		h.scheduler.Schedule(id, time.Now())
	}
	sendJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *Handlers) setChecksEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[enabledBody](w, r)
	if !ok {
		return
	}
	if err := h.instances.SetChecksEnabled(r.Context(), id, body.Enabled); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) setAlertsEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[enabledBody](w, r)
	if !ok {
		return
	}
	if err := h.instances.SetAlertsEnabled(r.Context(), id, body.Enabled); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// updateInstanceArgs replaces an instance's check arguments, re-validating
// them against its definition and flushing its cached template expansion
// so the next run picks up the new values.
func (h *Handlers) updateInstanceArgs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	inst := h.instances.Get(id)
	if inst == nil {
		sendError(w, http.StatusNotFound, "unknown monitor instance id")
		return
	}
	body, ok := decodeAndValidate[argsBody](w, r)
	if !ok {
		return
	}
	if err := h.definitions.ValidateArgs(inst.Row.DefinitionID, body.Arguments, false); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.instances.UpdateArgs(r.Context(), id, body.Arguments); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.tmplCache.Flush(id)
	h.instances.ScheduleImmediately(id)
	if h.scheduler != nil {
		h.scheduler.Schedule(id, time.Now())
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) listAlertHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.gw.FetchAll(r.Context(),
		`SELECT id, monitor_id, start_at, end_at, message FROM alert_intervals WHERE monitor_id=? ORDER BY start_at DESC`, id)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to fetch alert history")
		return
	}
	sendJSON(w, http.StatusOK, rows)
}
