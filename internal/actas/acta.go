// Package actas genera el acta de cierre de un caso.
package actas

import (
	"time"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

// LineaGestion es una entrada de la bitácora transcrita al acta.
type LineaGestion struct {
	Fecha time.Time
	Autor string
	Texto string
}

// Item es un par etiqueta/valor ya legible.
type Item struct {
	Etiqueta string
	Valor    string
}

// Acta contiene todo lo que el documento debe mostrar, ya resuelto a texto.
type Acta struct {
	CasoID          uuid.UUID
	Folio           string
	Ciclo           string
	FechaIngreso    time.Time
	FechaCierre     time.Time
	Cerrador        string
	CerradorRol     string
	Paciente        string
	Documento       string
	FechaNacimiento string
	Domicilio       string
	Telefono        string
	Relato          string
	Vulneraciones   []string
	Gestiones       []LineaGestion
	Observaciones   string
	Seguimiento     []Item
	Denuncia        []Item
	Fallecido       bool
	FechaDefuncion  string
}

// NuevaActa resuelve los catálogos y etiquetas del caso cerrado.
func NuevaActa(c repo.Caso, gestiones []repo.GestionEntrada, cerrador repo.Usuario, cat catalogos.Catalogo) Acta {
	a := Acta{
		CasoID:       c.ID,
		Folio:        c.Ingreso.Folio,
		Ciclo:        cat.NombreCiclo(c.CicloVitalID),
		FechaIngreso: c.FechaIngreso,
		Cerrador:     cerrador.NombreCompleto,
		CerradorRol:  cerrador.Rol.String(),
		Paciente:     c.Paciente.NombreCompleto(),
		Documento:    c.Paciente.Documento.String(),
		Domicilio:    c.Paciente.Domicilio.String(),
		Telefono:     c.Paciente.Telefono,
		Relato:       c.Ingreso.Relato,
		Fallecido:    c.Seguimiento.Fallecido,
	}
	if c.FechaCierre != nil {
		a.FechaCierre = *c.FechaCierre
	} else {
		a.FechaCierre = util.Now()
	}
	if c.Paciente.FechaNacimiento != nil {
		a.FechaNacimiento = c.Paciente.FechaNacimiento.Format("02/01/2006")
	}
	if a.Fallecido && c.Seguimiento.FechaDefuncion != nil {
		a.FechaDefuncion = c.Seguimiento.FechaDefuncion.Format("02/01/2006")
	}

	for _, id := range c.Ingreso.VulneracionIDs {
		v, ok := cat.Vulneracion(id)
		if !ok {
			continue
		}
		if v.EsOtro() && c.Ingreso.VulneracionOtro != "" {
			a.Vulneraciones = append(a.Vulneraciones, "Otro: "+c.Ingreso.VulneracionOtro)
			continue
		}
		a.Vulneraciones = append(a.Vulneraciones, v.Nombre)
	}

	for _, g := range gestiones {
		a.Gestiones = append(a.Gestiones, LineaGestion{Fecha: g.Fecha, Autor: g.AutorNombre, Texto: g.Texto})
	}
	if len(a.Gestiones) == 0 {
		a.Observaciones = c.Seguimiento.Observaciones
	}

	s := c.Seguimiento
	a.Seguimiento = []Item{
		{"Recinto inscrito", nombreCatalogo(cat.Recinto, s.RecintoInscritoID, s.RecintoInscritoOtro)},
		{"Control sanitario", s.ControlSanitario.Etiqueta()},
		{"Gestión de vacunas", s.GestionVacunas.Etiqueta()},
		{"Gestión judicial", s.GestionJudicial.Etiqueta()},
		{"Gestión salud mental", s.GestionSaludMental.Etiqueta()},
		{"Gestión COSAM", s.GestionCOSAM.Etiqueta()},
	}

	if c.Denuncia.Realizada {
		a.Denuncia = []Item{
			{"Institución", nombreCatalogo(cat.Institucion, c.Denuncia.InstitucionID, c.Denuncia.InstitucionOtro)},
			{"Profesional", c.Denuncia.ProfesionalNombre},
			{"Cargo", c.Denuncia.ProfesionalCargo},
		}
	}
	return a
}

func nombreCatalogo(buscar func(int64) (repo.EntradaCatalogo, bool), id *int64, otro string) string {
	if id == nil {
		return "-"
	}
	e, ok := buscar(*id)
	if !ok {
		return "-"
	}
	if e.EsOtro() && otro != "" {
		return "Otro: " + otro
	}
	return e.Nombre
}
