// Package app arma las dependencias compartidas entre el servicio y el CLI
// a partir de la configuración.
package app

import (
	"github.com/dropDatabas3/identsync/internal/config"
	"github.com/dropDatabas3/identsync/internal/provider"
	providerlocal "github.com/dropDatabas3/identsync/internal/provider/local"
	"github.com/dropDatabas3/identsync/internal/provider/stytchapi"
	"github.com/dropDatabas3/identsync/internal/security/password"
)

// BuildProvider arma el cliente del proveedor de identidad según config.
func BuildProvider(cfg *config.Config) provider.Client {
	switch cfg.Provider.Kind {
	case "local":
		var sender providerlocal.Sender
		if s := cfg.Provider.Local.SMTP; s.Host != "" {
			sender = providerlocal.NewSMTPSender(s.Host, s.Port, s.From, s.Username, s.Password)
		}
		return providerlocal.New(providerlocal.Options{
			JWTSecret:  cfg.Provider.Local.JWTSecret,
			SessionTTL: cfg.Provider.Local.SessionTTL,
			OTPTTL:     cfg.Provider.Local.OTPTTL,
			Policy:     PasswordPolicy(cfg),
			Sender:     sender,
		})
	default:
		return stytchapi.New(
			cfg.Provider.Stytch.BaseURL,
			cfg.Provider.Stytch.ProjectID,
			cfg.Provider.Stytch.Secret,
		)
	}
}

// PasswordPolicy traduce la sección security.password de la config.
func PasswordPolicy(cfg *config.Config) password.Policy {
	return password.Policy{
		MinLength:     cfg.Security.Password.MinLength,
		RequireUpper:  cfg.Security.Password.RequireUpper,
		RequireLower:  cfg.Security.Password.RequireLower,
		RequireDigit:  cfg.Security.Password.RequireDigit,
		RequireSymbol: cfg.Security.Password.RequireSymbol,
	}
}
