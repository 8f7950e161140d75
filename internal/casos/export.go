package casos

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/repo"
)

const (
	hojaCasos        = "Casos"
	eventoExportar   = "EXPORTAR_CASOS"
	formatoFechaHora = "02/01/2006 15:04"
)

var columnasExport = []any{
	"Folio", "Fecha ingreso", "Estado", "Ciclo vital", "Paciente", "Documento",
	"Fecha nacimiento", "Vulneraciones", "Denuncia", "Asignado a", "Fecha cierre",
}

// Exportar escribe un XLSX con los casos visibles para el actor y la consulta dada.
func (s *Service) Exportar(ctx context.Context, a acceso.Actor, q Consulta, w io.Writer) error {
	f := acceso.FiltroBandeja(a)
	if f.Alcance == acceso.AlcanceNinguno {
		return acceso.ErrForbidden
	}
	q.SinPaginar = true
	casos, _, err := s.repo.Listar(ctx, f, q)
	if err != nil {
		return err
	}
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return err
	}

	if err := escribirPlanilla(w, casos, cat); err != nil {
		return err
	}

	uid := a.ID()
	ev := repo.Evento{
		Accion:        eventoExportar,
		UsuarioID:     &uid,
		UsuarioNombre: a.Usuario.NombreCompleto,
		Detalles:      fmt.Sprintf("%d casos exportados", len(casos)),
	}
	if err := s.eventos.RegistrarEvento(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("no se pudo registrar la exportación")
	}
	return nil
}

func escribirPlanilla(w io.Writer, casos []repo.Caso, cat catalogos.Catalogo) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", hojaCasos); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(hojaCasos)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, len(columnasExport), 20); err != nil {
		return err
	}
	if err := sw.SetRow("A1", columnasExport); err != nil {
		return err
	}

	for i, c := range casos {
		celda, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(celda, filaExport(c, cat)); err != nil {
			return fmt.Errorf("casos: fila %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

func filaExport(c repo.Caso, cat catalogos.Catalogo) []any {
	nacimiento, cierre := "", ""
	if c.Paciente.FechaNacimiento != nil {
		nacimiento = c.Paciente.FechaNacimiento.Format("02/01/2006")
	}
	if c.FechaCierre != nil {
		cierre = c.FechaCierre.Format(formatoFechaHora)
	}

	vulneraciones := make([]string, 0, len(c.Ingreso.VulneracionIDs))
	for _, id := range c.Ingreso.VulneracionIDs {
		if v, ok := cat.Vulneracion(id); ok {
			if v.EsOtro() && c.Ingreso.VulneracionOtro != "" {
				vulneraciones = append(vulneraciones, "Otro: "+c.Ingreso.VulneracionOtro)
				continue
			}
			vulneraciones = append(vulneraciones, v.Nombre)
		}
	}

	denuncia := "No"
	if c.Denuncia.Realizada {
		denuncia = "Sí"
	}
	asignado := c.AsignadoNombre
	if asignado == "" {
		asignado = "-"
	}

	return []any{
		c.Ingreso.Folio,
		c.FechaIngreso.Format(formatoFechaHora),
		c.Estado.Etiqueta(),
		cat.NombreCiclo(c.CicloVitalID),
		c.Paciente.NombreCompleto(),
		c.Paciente.Documento.String(),
		nacimiento,
		strings.Join(vulneraciones, ", "),
		denuncia,
		asignado,
		cierre,
	}
}
