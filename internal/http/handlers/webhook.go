package handlers

import (
	"io"
	"net/http"

	httpx "github.com/dropDatabas3/identsync/internal/http"
	"github.com/dropDatabas3/identsync/internal/observability/logger"

	"github.com/dropDatabas3/identsync/internal/directory"
	"github.com/dropDatabas3/identsync/internal/webhook"
)

// Webhook procesa eventos de deprovisioning del proveedor de identidad.
type Webhook struct {
	Verifier *webhook.Verifier
	Store    directory.Service
}

// Handle implementa POST /webhooks/identity.
//
// Orden estricto: verificación de firma sobre el cuerpo crudo, después
// parseo, después borrado. Cualquier fallo de firma es 400 sin tocar la
// base; eventos que no son borrados responden 200 y se ignoran. El borrado
// es idempotente: un user_id ya ausente sigue siendo 200.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		httpx.RecordWebhookEvent("bad_signature")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "no se pudo leer el cuerpo", httpx.CodeInvalidJSON)
		return
	}
	defer r.Body.Close()

	if err := h.Verifier.Verify(payload, r.Header); err != nil {
		log.Warn("webhook verification failed", logger.Err(err))
		httpx.RecordWebhookEvent("bad_signature")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "firma svix inválida o headers ausentes", httpx.CodeBadSignature)
		return
	}

	del, isDelete, err := webhook.ParseDeletion(payload)
	if err != nil {
		httpx.RecordWebhookEvent("ignored")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "json inválido", httpx.CodeInvalidJSON)
		return
	}
	if !isDelete || del.UserID == "" {
		log.Debug("webhook event ignored (not a user deletion)")
		httpx.RecordWebhookEvent("ignored")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	rows, err := h.Store.Delete(r.Context(), del.UserID)
	httpx.RecordDirectoryOp("delete", err)
	if err != nil {
		// 500 para que el emisor reintente con backoff
		log.Error("webhook deletion failed", logger.UserID(del.UserID), logger.Err(err))
		httpx.RecordWebhookEvent("db_error")
		httpx.WriteError(w, http.StatusInternalServerError, "store_unavailable", "no se pudo borrar del directorio", httpx.CodeStoreDown)
		return
	}

	log.Info("user deprovisioned",
		logger.UserID(del.UserID),
		logger.Event(del.Source),
		logger.Rows(rows),
	)
	httpx.RecordWebhookEvent("deleted")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "deleted", "rows": rows})
}
