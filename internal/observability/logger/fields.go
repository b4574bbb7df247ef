package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// UserAgent crea un campo para el User-Agent.
func UserAgent(v string) zap.Field {
	return zap.String("user_agent", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// UserID crea un campo para el ID del usuario (el user_id del proveedor).
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// Email crea un campo para el email (usar con cuidado en prod).
func Email(v string) zap.Field {
	return zap.String("email", v)
}

// Step crea un campo para el paso actual del flujo de onboarding.
func Step(v string) zap.Field {
	return zap.String("step", v)
}

// Event crea un campo para el tipo de evento de webhook.
func Event(v string) zap.Field {
	return zap.String("event", v)
}

// Rows crea un campo para filas afectadas en el directorio.
func Rows(v int64) zap.Field {
	return zap.Int64("rows", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
// Usa la key "error" estándar.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// HELPERS GENÉRICOS
// =================================================================================

// Count crea un campo numérico genérico.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// ID crea un campo de ID genérico.
func ID(v string) zap.Field {
	return zap.String("id", v)
}

// Any crea un campo de tipo arbitrario.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string con key custom.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int con key custom.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool con key custom.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
