package api

import "net/http"

type monitorGroupBody struct {
	ParentID *int64 `json:"parent_id"`
	Name     string `json:"name" validate:"required"`
}

func (h *Handlers) listMonitorGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to list monitor groups")
		return
	}
	sendJSON(w, http.StatusOK, groups)
}

func (h *Handlers) createMonitorGroup(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAndValidate[monitorGroupBody](w, r)
	if !ok {
		return
	}
	id, err := h.groups.Create(r.Context(), body.ParentID, body.Name)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) updateMonitorGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[monitorGroupBody](w, r)
	if !ok {
		return
	}
	if err := h.groups.Update(r.Context(), id, body.ParentID, body.Name); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteMonitorGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), id); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
