// Package handlers contiene los handlers HTTP del servicio de directorio y
// del webhook de deprovisioning.
package handlers

import (
	"net/http"
	"strings"

	httpx "github.com/dropDatabas3/identsync/internal/http"
	"github.com/dropDatabas3/identsync/internal/observability/logger"

	"github.com/dropDatabas3/identsync/internal/directory"
)

// Directory expone el directorio de usuarios por HTTP.
type Directory struct {
	Store directory.Service
}

type checkRequest struct {
	Email string `json:"email"`
}

type checkResponse struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
}

// Check implementa POST /v1/directory/check.
// Responde {exists, name} mirando solo el email.
func (h *Directory) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_field", "email es requerido", httpx.CodeMissingField)
		return
	}

	res, err := h.Store.Exists(r.Context(), email)
	httpx.RecordDirectoryOp("exists", err)
	if err != nil {
		logger.From(r.Context()).Error("exists check failed", logger.Email(email), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "store_unavailable", "no se pudo consultar el directorio", httpx.CodeStoreDown)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Exists: res.Exists, Name: res.FullName})
}

type saveRequest struct {
	Email    string `json:"email"`
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
}

type saveResponse struct {
	Success bool   `json:"success"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// Save implementa POST /v1/directory/save.
// Upsert idempotente: crear de nuevo un usuario existente responde 200 con
// created=false, nunca error.
func (h *Directory) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.UserID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_field", "email y user_id son requeridos", httpx.CodeMissingField)
		return
	}

	// atajos OAuth/passkey pueden llegar sin nombre; la fila siempre lleva uno
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = "User"
	}

	created, err := h.Store.Upsert(r.Context(), directory.Record{
		UserID:   strings.TrimSpace(req.UserID),
		Email:    req.Email,
		FullName: fullName,
	})
	httpx.RecordDirectoryOp("upsert", err)
	if err != nil {
		logger.From(r.Context()).Error("upsert failed", logger.UserID(req.UserID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "store_unavailable", "no se pudo escribir el directorio", httpx.CodeStoreDown)
		return
	}

	msg := "User already exists"
	if created {
		msg = "User created"
	}
	httpx.WriteJSON(w, http.StatusOK, saveResponse{Success: true, Created: created, Message: msg})
}

type deleteRequest struct {
	UserID string `json:"user_id"`
}

type deleteResponse struct {
	Rows int64 `json:"rows"`
}

// Delete implementa POST /v1/directory/delete (tooling de operaciones; el
// camino normal de deprovisioning es el webhook). Idempotente: borrar un
// user_id inexistente responde rows=0.
func (h *Directory) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_field", "user_id es requerido", httpx.CodeMissingField)
		return
	}

	rows, err := h.Store.Delete(r.Context(), strings.TrimSpace(req.UserID))
	httpx.RecordDirectoryOp("delete", err)
	if err != nil {
		logger.From(r.Context()).Error("delete failed", logger.UserID(req.UserID), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "store_unavailable", "no se pudo borrar del directorio", httpx.CodeStoreDown)
		return
	}
	logger.From(r.Context()).Info("user deleted", logger.UserID(req.UserID), logger.Rows(rows))
	httpx.WriteJSON(w, http.StatusOK, deleteResponse{Rows: rows})
}
