package middlewares

import (
	"net/http"
	"strings"
)

// GateConfig define la política del gate de sesión por presencia de cookie.
//
// El gate NO valida la sesión: solo mira si la cookie existe. La validación
// real ocurre contra el proveedor de identidad cuando la página protegida
// carga; acá solo se evita el flash de contenido para visitantes claramente
// deslogueados.
type GateConfig struct {
	CookieName      string // ej: "idp_session"
	ProtectedPrefix string // ej: "/dashboard"
	EntryPath       string // ej: "/"
}

// WithSessionGate aplica la política de redirección:
//
//	ruta protegida sin cookie  → redirect a EntryPath
//	EntryPath con cookie       → redirect a ProtectedPrefix
//	cualquier otra combinación → pasa sin tocar
//
// Cookie con valor vacío cuenta como ausente (logout a medias).
func WithSessionGate(cfg GateConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasSession := false
			if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
				hasSession = true
			}

			path := r.URL.Path
			protected := path == cfg.ProtectedPrefix ||
				strings.HasPrefix(path, cfg.ProtectedPrefix+"/")

			switch {
			case protected && !hasSession:
				http.Redirect(w, r, cfg.EntryPath, http.StatusFound)
				return
			case path == cfg.EntryPath && hasSession:
				http.Redirect(w, r, cfg.ProtectedPrefix, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
