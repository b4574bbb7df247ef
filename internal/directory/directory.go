// Package directory define el contrato del Directory Sync Service: el espejo
// relacional de los usuarios cuyo registro de verdad vive en el proveedor de
// identidad. El directorio guarda metadata (email, nombre, rol); nunca
// credenciales.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultRole es el rol asignado a todo registro nuevo.
const DefaultRole = "user"

// Record es una fila del directorio. UserID es el user_id opaco del proveedor.
type Record struct {
	UserID    string
	Email     string
	FullName  string
	Role      string
	CreatedAt time.Time
}

// ExistsResult es la respuesta del existence check.
type ExistsResult struct {
	Exists   bool
	FullName string
}

var (
	// ErrUnavailable indica un fallo de conectividad o consulta contra el
	// directorio. Los callers NUNCA deben inferir no-existencia de este error.
	ErrUnavailable = errors.New("directory unavailable")

	// ErrMissingFields indica input incompleto (email o user_id vacíos).
	ErrMissingFields = errors.New("missing fields")
)

// Service expone las tres operaciones del directorio.
//
// Upsert re-chequea existencia por email dentro de la misma operación y hace
// no-op silencioso ante conflicto de inserción: dos signups concurrentes para
// el mismo email deben resultar en exactamente una fila y exactamente un
// created=true. Upsert jamás modifica una fila existente.
//
// Delete es idempotente: borrar un user_id inexistente retorna rows=0 sin error.
type Service interface {
	Exists(ctx context.Context, email string) (ExistsResult, error)
	Upsert(ctx context.Context, rec Record) (created bool, err error)
	Delete(ctx context.Context, userID string) (rows int64, err error)
}

// NormalizeEmail baja a minúsculas y recorta espacios.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
