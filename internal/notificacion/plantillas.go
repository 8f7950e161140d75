package notificacion

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

const base = `{{define "inicio"}}<div style="font-family:Arial,sans-serif;color:#333">{{end}}
{{define "fin"}}<p style="font-size:12px;color:#888">Mensaje automático de RedProtege. No responder.</p></div>{{end}}
{{define "enlace"}}{{if .}}<p><a href="{{.}}" style="background:#0d6efd;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">Ver en RedProtege</a></p>{{end}}{{end}}`

var plantillas = template.Must(template.New("correos").Parse(base + `
{{define "asignacion"}}{{template "inicio"}}
<h2>Nuevo caso asignado</h2>
<p>Hola {{.Destinatario}}, se le ha asignado el caso folio <strong>{{.Folio}}</strong> del ciclo vital {{.Ciclo}}.</p>
<p>Paciente: {{.Paciente}}</p>
{{template "enlace" .Enlace}}{{template "fin"}}{{end}}

{{define "nuevo_caso"}}{{template "inicio"}}
<h2>Nuevo caso ingresado</h2>
<p>Se registró el caso folio <strong>{{.Folio}}</strong> del ciclo vital {{.Ciclo}}, pendiente de rescate.</p>
<p>Fecha de ingreso: {{.Fecha}}</p>
{{template "enlace" .Enlace}}{{template "fin"}}{{end}}

{{define "cierre"}}{{template "inicio"}}
<h2>Caso cerrado</h2>
<p>El caso folio <strong>{{.Folio}}</strong> fue cerrado por {{.Autor}} el {{.Fecha}}.</p>
{{if .ConActa}}<p>Se adjunta el acta de cierre.</p>{{else}}<p>El acta de cierre no está disponible en este correo.</p>{{end}}
{{template "enlace" .Enlace}}{{template "fin"}}{{end}}

{{define "subrogancia_activada"}}{{template "inicio"}}
<h2>Subrogancia activada</h2>
<p>Hola {{.Destinatario}}, {{.Autor}} le ha designado como subrogante. Desde ahora puede ver y asignar los casos del ciclo vital {{.Ciclo}}.</p>
{{template "enlace" .Enlace}}{{template "fin"}}{{end}}

{{define "subrogancia_finalizada"}}{{template "inicio"}}
<h2>Subrogancia finalizada</h2>
<p>Hola {{.Destinatario}}, {{.Autor}} ha finalizado su subrogancia. Ya no verá los casos de su ciclo vital.</p>
{{template "fin"}}{{end}}

{{define "credenciales"}}{{template "inicio"}}
<h2>Bienvenido a RedProtege</h2>
<p>Hola {{.Destinatario}}, se creó su cuenta con el rol {{.Rol}}.</p>
<p>Usuario: <strong>{{.Email}}</strong><br>Contraseña temporal: <strong>{{.Clave}}</strong></p>
<p>Deberá cambiar la contraseña en su primer ingreso.</p>
{{template "enlace" .Enlace}}{{template "fin"}}{{end}}
`))

type datos struct {
	Destinatario string
	Folio        string
	Ciclo        string
	Paciente     string
	Fecha        string
	Autor        string
	Rol          string
	Email        string
	Clave        string
	Enlace       string
	ConActa      bool
}

// Plantillas arma los mensajes del sistema con enlaces a la URL pública.
type Plantillas struct {
	baseURL string
}

func NewPlantillas(baseURL string) *Plantillas {
	return &Plantillas{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Plantillas) enlace(ruta string) string {
	if p.baseURL == "" {
		return ""
	}
	return p.baseURL + ruta
}

func (p *Plantillas) Asignacion(c repo.Caso, asignado repo.Usuario, ciclo string) (Mensaje, error) {
	html, err := render("asignacion", datos{
		Destinatario: asignado.NombreCompleto,
		Folio:        c.Ingreso.Folio,
		Ciclo:        ciclo,
		Paciente:     c.Paciente.NombreCompleto(),
		Enlace:       p.enlace("/casos/" + c.ID.String()),
	})
	return Mensaje{
		Para:   []string{asignado.Email},
		Asunto: fmt.Sprintf("Caso asignado: folio %s", c.Ingreso.Folio),
		HTML:   html,
	}, err
}

// NuevoCaso avisa a los referentes; van en copia oculta.
func (p *Plantillas) NuevoCaso(c repo.Caso, ciclo string, referentes []string) (Mensaje, error) {
	html, err := render("nuevo_caso", datos{
		Folio:  c.Ingreso.Folio,
		Ciclo:  ciclo,
		Fecha:  c.FechaIngreso.In(util.Now().Location()).Format("02/01/2006 15:04"),
		Enlace: p.enlace("/casos/" + c.ID.String()),
	})
	return Mensaje{
		Bcc:    referentes,
		Asunto: fmt.Sprintf("Nuevo caso ingresado: folio %s", c.Ingreso.Folio),
		HTML:   html,
	}, err
}

func (p *Plantillas) Cierre(c repo.Caso, cerrador repo.Usuario, para []string, acta string) (Mensaje, error) {
	fecha := ""
	if c.FechaCierre != nil {
		fecha = c.FechaCierre.In(util.Now().Location()).Format("02/01/2006 15:04")
	}
	html, err := render("cierre", datos{
		Folio:   c.Ingreso.Folio,
		Autor:   cerrador.NombreCompleto,
		Fecha:   fecha,
		ConActa: acta != "",
		Enlace:  p.enlace("/casos/" + c.ID.String()),
	})
	return Mensaje{
		Para:    para,
		Asunto:  fmt.Sprintf("Caso cerrado: folio %s", c.Ingreso.Folio),
		HTML:    html,
		Adjunto: acta,
	}, err
}

func (p *Plantillas) SubroganciaActivada(titular, subrogante repo.Usuario, ciclo string) (Mensaje, error) {
	html, err := render("subrogancia_activada", datos{
		Destinatario: subrogante.NombreCompleto,
		Autor:        titular.NombreCompleto,
		Ciclo:        ciclo,
		Enlace:       p.enlace("/casos"),
	})
	return Mensaje{
		Para:   []string{subrogante.Email},
		Asunto: "Subrogancia activada",
		HTML:   html,
	}, err
}

func (p *Plantillas) SubroganciaFinalizada(titular, subrogante repo.Usuario) (Mensaje, error) {
	html, err := render("subrogancia_finalizada", datos{
		Destinatario: subrogante.NombreCompleto,
		Autor:        titular.NombreCompleto,
	})
	return Mensaje{
		Para:   []string{subrogante.Email},
		Asunto: "Subrogancia finalizada",
		HTML:   html,
	}, err
}

func (p *Plantillas) Credenciales(u repo.Usuario, claveTemporal string) (Mensaje, error) {
	html, err := render("credenciales", datos{
		Destinatario: u.NombreCompleto,
		Rol:          u.Rol.String(),
		Email:        u.Email,
		Clave:        claveTemporal,
		Enlace:       p.enlace("/login"),
	})
	return Mensaje{
		Para:   []string{u.Email},
		Asunto: "Credenciales de acceso a RedProtege",
		HTML:   html,
	}, err
}

func render(nombre string, d datos) (string, error) {
	var buf bytes.Buffer
	if err := plantillas.ExecuteTemplate(&buf, nombre, d); err != nil {
		return "", fmt.Errorf("notificacion: plantilla %s: %w", nombre, err)
	}
	return buf.String(), nil
}
