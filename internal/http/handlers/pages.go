package handlers

import (
	"html/template"
	"net/http"
)

// Páginas mínimas servidas detrás del gate de sesión. La UI real vive en el
// front; estas existen para que el gate tenga algo que proteger en deploys
// standalone y para smoke tests.
var (
	entryTmpl = template.Must(template.New("entry").Parse(`<!doctype html>
<html><head><title>Sign in</title></head>
<body><h1>Sign in</h1><p>Start onboarding to continue.</p></body></html>
`))
	dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html><head><title>Dashboard</title></head>
<body><h1>Dashboard</h1><p>You are signed in.</p></body></html>
`))
)

// EntryPage es la página pública de entrada (paso Identify).
func EntryPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = entryTmpl.Execute(w, nil)
}

// DashboardPage es la superficie protegida.
func DashboardPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = dashboardTmpl.Execute(w, nil)
}
