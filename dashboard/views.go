package dashboard

import (
	"html/template"
	"net/http"

	"github.com/cockroachdb/errors"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="60">
<title>Dashboard de Cargas</title>
<style>
body { font-family: Arial, sans-serif; padding: 20px; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #ddd; padding: 6px; text-align: left; }
.connected { color: #34a853; }
.disconnected { color: #ea4335; }
</style>
</head>
<body>
<h1>Dashboard de Cargas</h1>
<p>Estado: <span class="{{.Snapshot.ConnectionStatus}}">{{.Snapshot.ConnectionStatus}}</span>
 &middot; Última actualización: {{.LastRefreshed}}
 &middot; Total: {{.Snapshot.TotalCount}}</p>
{{if eq .Snapshot.ConnectionStatus "disconnected"}}<p><a href="/auth">Autorizar acceso a Gmail</a></p>{{end}}
<form action="/filter" method="POST">
<label>Filtro de asunto:</label>
<input type="text" name="newFilter" value="{{.RequestedFilter}}" list="suggestions" required>
<datalist id="suggestions">{{range .Suggestions}}<option value="{{.}}">{{end}}</datalist>
<button type="submit">Aplicar</button>
</form>
{{if ne .RequestedFilter .Snapshot.ActiveFilter}}<p>Actualizando con el filtro "{{.RequestedFilter}}"...</p>{{end}}
<table>
<tr><th>Carga</th><th>Empleado</th><th>De</th><th>Fecha</th><th>Asunto</th></tr>
{{range .Snapshot.Records}}<tr><td>{{.ReferenceNumber}}</td><td>{{.Recipient}}</td><td>{{.Sender}}</td><td>{{.FormattedTimestamp}}</td><td>{{.Subject}}</td></tr>
{{else}}<tr><td colspan="5">No hay cargas para "{{.Snapshot.ActiveFilter}}".</td></tr>
{{end}}</table>
</body>
</html>
`))

var authTemplate = template.Must(template.New("auth").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Autorizar Dashboard de Cargas</title></head>
<body style="font-family: Arial; padding: 20px;">
<h1>Autorizar Dashboard de Cargas</h1>
{{if .Missing}}
<p>No se encontraron credenciales OAuth. Configurá la variable de entorno
<code>{{.CredentialsEnv}}</code> o el archivo <code>{{.CredentialsFile}}</code> y recargá esta página.</p>
{{else}}
<ol>
<li>Hacé click en el siguiente link</li>
<li>Logueate con tu Gmail y aceptá los permisos</li>
<li>Copiá el código que te da Google y pegalo abajo</li>
</ol>
<a href="{{.URL}}" target="_blank">Autorizar con Google</a>
<form action="/auth/callback" method="POST">
<label>Código de autorización:</label><br>
<input type="text" name="code" style="width: 400px;" required>
<button type="submit">Enviar código</button>
</form>
{{end}}
</body>
</html>
`))

var resultTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial; padding: 20px;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<a href="{{.Link}}">{{.LinkText}}</a>
</body>
</html>
`))

type dashboardView struct {
	Snapshot        *Snapshot
	LastRefreshed   string
	RequestedFilter string
	Suggestions     []string
}

type authView struct {
	Missing         bool
	URL             string
	CredentialsEnv  string
	CredentialsFile string
}

type resultView struct {
	Title    string
	Message  string
	Link     string
	LinkText string
}

// renderHTML executes tmpl into w with the given status code.
func renderHTML(w http.ResponseWriter, status int, tmpl *template.Template, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return errors.WithStack(tmpl.Execute(w, data))
}
