package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/irisett-go/irisett/internal/store"
)

type paramSpecBody struct {
	Name         string `json:"name" validate:"required"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value"`
}

type definitionBody struct {
	Name            string          `json:"name" validate:"required"`
	Description     string          `json:"description"`
	Active          bool            `json:"active"`
	ExecutablePath  string          `json:"executable_path" validate:"required"`
	ArgvTemplate    string          `json:"argv_template" validate:"required"`
	DescriptionTmpl string          `json:"description_tmpl"`
	Params          []paramSpecBody `json:"params"`
}

func (h *Handlers) listDefinitions(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, h.definitions.List())
}

func (h *Handlers) getDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	def, found := h.definitions.Get(id)
	if !found {
		sendError(w, http.StatusNotFound, "unknown definition id")
		return
	}
	sendJSON(w, http.StatusOK, def)
}

func (h *Handlers) createDefinition(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAndValidate[definitionBody](w, r)
	if !ok {
		return
	}
	d := &store.MonitorDefinition{
		Name: body.Name, Description: body.Description, Active: body.Active,
		ExecutablePath: body.ExecutablePath, ArgvTemplate: body.ArgvTemplate,
		DescriptionTmpl: body.DescriptionTmpl,
	}
	for _, p := range body.Params {
		d.Params = append(d.Params, store.ParamSpec{
			Name: p.Name, DisplayName: p.DisplayName, Description: p.Description,
			Required: p.Required, DefaultValue: p.DefaultValue,
		})
	}
	id, err := h.definitions.Create(r.Context(), d)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) updateDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[definitionBody](w, r)
	if !ok {
		return
	}
	err := h.definitions.Update(r.Context(), id, func(d *store.MonitorDefinition) {
		d.Name = body.Name
		d.Description = body.Description
		d.Active = body.Active
		d.ExecutablePath = body.ExecutablePath
		d.ArgvTemplate = body.ArgvTemplate
		d.DescriptionTmpl = body.DescriptionTmpl
	})
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.definitions.Delete(r.Context(), id, h.instances.InUseByDefinition); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) setDefinitionParam(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[paramSpecBody](w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if body.Name == "" {
		body.Name = name
	}
	param := store.ParamSpec{
		Name: body.Name, DisplayName: body.DisplayName, Description: body.Description,
		Required: body.Required, DefaultValue: body.DefaultValue,
	}
	if err := h.definitions.SetParameter(r.Context(), id, param); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (h *Handlers) deleteDefinitionParam(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.definitions.DeleteParameter(r.Context(), id, name); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}
