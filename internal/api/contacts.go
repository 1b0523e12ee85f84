package api

import (
	"net/http"

	"github.com/irisett-go/irisett/internal/store"
)

type contactBody struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}

type contactGroupBody struct {
	Name   string `json:"name" validate:"required"`
	Active bool   `json:"active"`
}

func (h *Handlers) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.ListContacts(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	sendJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) createContact(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAndValidate[contactBody](w, r)
	if !ok {
		return
	}
	id, err := h.contacts.CreateContact(r.Context(), store.Contact{
		Name: body.Name, Email: body.Email, Phone: body.Phone, Active: body.Active,
	})
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) updateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	body, ok := decodeAndValidate[contactBody](w, r)
	if !ok {
		return
	}
	if err := h.contacts.UpdateContact(r.Context(), id, store.Contact{
		Name: body.Name, Email: body.Email, Phone: body.Phone, Active: body.Active,
	}); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.contacts.DeleteContact(r.Context(), id); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) createContactGroup(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAndValidate[contactGroupBody](w, r)
	if !ok {
		return
	}
	id, err := h.contacts.CreateContactGroup(r.Context(), body.Name, body.Active)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) deleteContactGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.contacts.DeleteContactGroup(r.Context(), id); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) addContactGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := parseID(w, r, "contactID")
	if !ok {
		return
	}
	if err := h.contacts.AddMember(r.Context(), groupID, contactID); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *Handlers) removeContactGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := parseID(w, r, "contactID")
	if !ok {
		return
	}
	if err := h.contacts.RemoveMember(r.Context(), groupID, contactID); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
