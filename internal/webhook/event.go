// Package webhook procesa los eventos de deprovisioning del proveedor de
// identidad: verificación de firma svix y extracción del user_id a borrar.
//
// El proveedor emite borrados de usuario en dos formatos distintos según el
// origen (API vs dashboard); ambos llegan por el mismo endpoint y se
// normalizan acá a un único Deletion.
package webhook

import (
	"encoding/json"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
)

// Deletion es un evento de borrado ya normalizado.
type Deletion struct {
	UserID string
	Source string // "api" | "dashboard"
}

// event cubre la unión de ambos formatos del proveedor.
type event struct {
	// Formato A: eventos estándar de API
	Type string `json:"type"`
	Data struct {
		UserID string `json:"user_id"`
	} `json:"data"`

	// Formato B: eventos del dashboard (id es el user_id acá)
	Action     string `json:"action"`
	ObjectType string `json:"object_type"`
	ID         string `json:"id"`
	Source     string `json:"source"`
}

// ParseDeletion decodifica el payload y reporta si es un borrado de usuario.
// Un JSON válido que no sea borrado retorna ok=false sin error: el caller
// responde 200 y lo ignora.
func ParseDeletion(payload []byte) (Deletion, bool, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Deletion{}, false, err
	}

	if evt.Type == "user.deleted" || strings.Contains(evt.Type, "user.delete") {
		return Deletion{UserID: evt.Data.UserID, Source: "api"}, true, nil
	}
	if evt.ObjectType == "user" && evt.Action == "DELETE" {
		return Deletion{UserID: evt.ID, Source: "dashboard"}, true, nil
	}
	return Deletion{}, false, nil
}

// Verifier valida firmas svix sobre el cuerpo crudo del request.
type Verifier struct {
	wh *svix.Webhook
}

// NewVerifier construye el verificador a partir del secret compartido
// (formato "whsec_<base64>").
func NewVerifier(secret string) (*Verifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{wh: wh}, nil
}

// Verify chequea la firma del payload contra los headers svix-id,
// svix-timestamp y svix-signature. Cualquier header ausente o firma
// inválida retorna error; el caller responde 400 sin procesar nada.
func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	return v.wh.Verify(payload, headers)
}
