package actas

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/storage"
	"github.com/redprotege/api/internal/util"
)

var noSeguro = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// PDF escribe el acta en disco y la respalda en el uploader configurado.
type PDF struct {
	dir      string
	uploader storage.Uploader
}

func NewPDF(dir string, uploader storage.Uploader) *PDF {
	if uploader == nil {
		uploader = storage.NoopUploader{}
	}
	return &PDF{dir: dir, uploader: uploader}
}

// NombreArchivo identifica el acta por folio e id del caso.
func NombreArchivo(a Acta) string {
	folio := noSeguro.ReplaceAllString(a.Folio, "_")
	if folio == "" {
		folio = "sin_folio"
	}
	return fmt.Sprintf("acta_%s_%s.pdf", folio, a.CasoID)
}

// ErrRespaldo acompaña una ruta válida: el acta quedó en disco pero no en el almacenamiento remoto.
var ErrRespaldo = errors.New("actas: respaldo remoto fallido")

// Generar produce el PDF y retorna su ruta local. Si sólo falla el respaldo remoto retorna
// la ruta junto a un error que envuelve ErrRespaldo.
func (g *PDF) Generar(ctx context.Context, a Acta) (string, error) {
	if err := os.MkdirAll(g.dir, 0o750); err != nil {
		return "", fmt.Errorf("actas: crear directorio: %w", err)
	}
	nombre := NombreArchivo(a)
	ruta := filepath.Join(g.dir, nombre)

	if err := escribir(a, ruta); err != nil {
		return "", err
	}
	if err := g.respaldar(ctx, nombre, ruta); err != nil {
		log.Warn().Err(err).Str("acta", nombre).Msg("actas: respaldo remoto fallido")
		return ruta, fmt.Errorf("%w: %v", ErrRespaldo, err)
	}
	return ruta, nil
}

func (g *PDF) respaldar(ctx context.Context, nombre, ruta string) error {
	body, err := os.ReadFile(ruta)
	if err != nil {
		return err
	}
	res, err := g.uploader.Upload(ctx, storage.UploadInput{
		Key:         "actas/" + nombre,
		Body:        body,
		ContentType: "application/pdf",
	})
	switch {
	case errors.Is(err, storage.ErrNoConfigurado):
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("acta", nombre).Str("url", res.URL).Msg("acta respaldada")
	return nil
}

func escribir(a Acta, ruta string) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Acta de cierre "+a.Folio), false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Página %d de {nb}", pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr("ACTA DE CIERRE DE CASO"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Folio de atención: "+a.Folio), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	zona := util.Now().Location()
	seccion(pdf, tr, "Antecedentes del caso")
	campo(pdf, tr, "Ciclo vital", a.Ciclo)
	campo(pdf, tr, "Fecha de ingreso", a.FechaIngreso.In(zona).Format("02/01/2006 15:04"))
	campo(pdf, tr, "Fecha de cierre", a.FechaCierre.In(zona).Format("02/01/2006 15:04"))
	campo(pdf, tr, "Cerrado por", fmt.Sprintf("%s (%s)", a.Cerrador, a.CerradorRol))

	seccion(pdf, tr, "Identificación del paciente")
	campo(pdf, tr, "Nombre", a.Paciente)
	campo(pdf, tr, "Documento", a.Documento)
	campo(pdf, tr, "Fecha de nacimiento", a.FechaNacimiento)
	campo(pdf, tr, "Domicilio", a.Domicilio)
	campo(pdf, tr, "Teléfono", a.Telefono)
	if a.Fallecido {
		pdf.SetFont("Helvetica", "B", 10)
		texto := "PACIENTE FALLECIDO"
		if a.FechaDefuncion != "" {
			texto += " (" + a.FechaDefuncion + ")"
		}
		pdf.CellFormat(0, 6, tr(texto), "", 1, "L", false, 0, "")
	}

	seccion(pdf, tr, "Relato")
	parrafo(pdf, tr, a.Relato)

	seccion(pdf, tr, "Tipos de vulneración")
	if len(a.Vulneraciones) == 0 {
		parrafo(pdf, tr, "-")
	}
	for _, v := range a.Vulneraciones {
		parrafo(pdf, tr, "• "+v)
	}

	if len(a.Denuncia) > 0 {
		seccion(pdf, tr, "Denuncia")
		for _, it := range a.Denuncia {
			campo(pdf, tr, it.Etiqueta, it.Valor)
		}
	}

	seccion(pdf, tr, "Seguimiento clínico")
	for _, it := range a.Seguimiento {
		campo(pdf, tr, it.Etiqueta, it.Valor)
	}

	seccion(pdf, tr, "Bitácora de gestión")
	switch {
	case len(a.Gestiones) > 0:
		for _, g := range a.Gestiones {
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(0, 5, tr(g.Fecha.In(zona).Format("02/01/2006 15:04")+" - "+g.Autor), "", 1, "L", false, 0, "")
			parrafo(pdf, tr, g.Texto)
		}
	case strings.TrimSpace(a.Observaciones) != "":
		parrafo(pdf, tr, a.Observaciones)
	default:
		parrafo(pdf, tr, "Sin registros.")
	}

	if err := pdf.OutputFileAndClose(ruta); err != nil {
		return fmt.Errorf("actas: escribir pdf: %w", err)
	}
	return nil
}

func seccion(pdf *fpdf.Fpdf, tr func(string) string, titulo string) {
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 236, 245)
	pdf.CellFormat(0, 7, tr(titulo), "", 1, "L", true, 0, "")
	pdf.Ln(1)
}

func campo(pdf *fpdf.Fpdf, tr func(string) string, etiqueta, valor string) {
	if strings.TrimSpace(valor) == "" {
		valor = "-"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, 6, tr(etiqueta+":"), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, tr(valor), "", "L", false)
}

func parrafo(pdf *fpdf.Fpdf, tr func(string) string, texto string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(texto), "", "L", false)
}
