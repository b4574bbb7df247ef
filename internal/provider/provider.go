// Package provider define la capacidad opaca del proveedor de identidad:
// OTPs, passwords, OAuth, passkeys y sesiones. El core nunca crea identidades
// directamente; solo dispara su creación a través de estas llamadas.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// OTPChannel es el canal de entrega del código.
type OTPChannel string

const (
	ChannelEmail    OTPChannel = "email"
	ChannelWhatsApp OTPChannel = "whatsapp"
)

// OTPStart es el resultado de emitir un OTP. MethodID se necesita después
// para verificar el código.
type OTPStart struct {
	MethodID string
	UserID   string
}

// AuthResult es una autenticación exitosa contra el proveedor.
type AuthResult struct {
	UserID       string
	Email        string
	SessionToken string // opaco; el Session Gate solo chequea presencia
}

// StrengthResult es la respuesta del strength check del proveedor.
type StrengthResult struct {
	Valid    bool
	Feedback string
}

// Errores semánticos del proveedor. Cada uno mapea a un mensaje accionable
// en el orquestador.
var (
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetRequired      = errors.New("password reset required")
	ErrWeakPassword       = errors.New("weak password")
	ErrPasskeyFailed      = errors.New("passkey verification failed")
)

// ConnError marca fallos de conectividad/transporte contra el proveedor,
// distintos de los errores semánticos.
type ConnError struct{ Err error }

func (e *ConnError) Error() string { return fmt.Sprintf("provider unreachable: %v", e.Err) }
func (e *ConnError) Unwrap() error { return e.Err }

// IsConn reporta si err es un error de conectividad.
func IsConn(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}

// Client es la superficie del proveedor que consume el orquestador.
// Implementaciones: stytchapi (proveedor hosteado) y local (dev/tests).
type Client interface {
	// SendOTP emite un código por el canal dado (login-or-create).
	SendOTP(ctx context.Context, channel OTPChannel, destination string) (OTPStart, error)

	// AuthenticateOTP verifica el código contra el method id capturado.
	// Establece sesión. Código incorrecto/expirado → ErrInvalidCode.
	AuthenticateOTP(ctx context.Context, methodID, code string) (AuthResult, error)

	// AuthenticatePassword autentica email+password.
	// ErrResetRequired cuando el proveedor exige reset; ErrInvalidCredentials
	// para cualquier otro rechazo.
	AuthenticatePassword(ctx context.Context, email, password string) (AuthResult, error)

	// StrengthCheck corre la validación de fuerza del lado del proveedor.
	StrengthCheck(ctx context.Context, email, password string) (StrengthResult, error)

	// SetPasswordBySession adjunta un password a la sesión ya establecida
	// (post-OTP / post-OAuth).
	SetPasswordBySession(ctx context.Context, sessionToken, password string) (AuthResult, error)

	// ResetPasswordByToken canjea un token de deep link por un password nuevo.
	ResetPasswordByToken(ctx context.Context, resetToken, password string) (AuthResult, error)

	// StartPasswordReset dispara el email de reset con redirects de vuelta
	// al flujo.
	StartPasswordReset(ctx context.Context, email, loginURL, resetURL string) error

	// AuthenticateOAuth canjea el token del callback OAuth por una sesión.
	AuthenticateOAuth(ctx context.Context, token string) (AuthResult, error)

	// AuthenticatePasskey verifica una assertion de passkey ya firmada por
	// el autenticador del visitante. Solo usuarios existentes.
	AuthenticatePasskey(ctx context.Context, assertion string) (AuthResult, error)
}
