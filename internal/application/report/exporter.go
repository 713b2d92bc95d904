// Package report exporta el historial de movimientos a CSV y XLSX.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Encoding codificación del CSV.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252" // lo que abre Excel sin importar
)

// ParseEncoding valida la codificación pedida; vacío es UTF-8.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingUTF8, "utf8":
		return EncodingUTF8, nil
	case EncodingWindows1252, "cp1252", "latin1":
		return EncodingWindows1252, nil
	}
	return "", fmt.Errorf("codificación no soportada %q", s)
}

const dateLayout = "02/01/2006"

const sheetName = "Movimientos"

var header = []string{"Fecha", "ID", "Tipo", "Producto", "SKU", "TAG", "Arrendador", "Cantidad", "Solicitante"}

// Row fila exportada de un movimiento.
type Row struct {
	Date      time.Time
	ShortID   string
	Kind      string
	Product   string
	SKU       string
	Tag       string
	Lessor    string
	Quantity  decimal.Decimal // con signo
	Requester string
}

func (r Row) fields(loc *time.Location) []string {
	return []string{
		r.Date.In(loc).Format(dateLayout),
		r.ShortID,
		r.Kind,
		r.Product,
		r.SKU,
		r.Tag,
		r.Lessor,
		r.Quantity.String(),
		r.Requester,
	}
}

// MovementExporter arma las filas desde la caché local.
type MovementExporter struct {
	movements     repository.MovementRepository
	collaborators repository.CollaboratorRepository
	loc           *time.Location
}

// NewMovementExporter construye el exportador. loc nil usa la zona local.
func NewMovementExporter(movements repository.MovementRepository, collaborators repository.CollaboratorRepository, loc *time.Location) *MovementExporter {
	if loc == nil {
		loc = time.Local
	}
	return &MovementExporter{movements: movements, collaborators: collaborators, loc: loc}
}

// Rows movimientos filtrados, más reciente primero. Los cancelados solo salen si se filtra
// por ese estado.
func (e *MovementExporter) Rows(filter repository.MovementFilter) ([]Row, error) {
	filter.ExcludeCancelled = filter.Status != entity.MovementCancelled
	movs, err := e.movements.List(filter)
	if err != nil {
		return nil, err
	}
	collaborators, err := e.collaborators.List()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(collaborators))
	for _, c := range collaborators {
		names[c.ID] = c.Name
	}

	rows := make([]Row, 0, len(movs))
	for _, m := range movs {
		requester := names[m.CollaboratorID]
		if requester == "" {
			requester = m.Actor
		}
		rows = append(rows, Row{
			Date:      m.Timestamp,
			ShortID:   m.ShortID(),
			Kind:      m.Kind.Label(),
			Product:   m.ProductName,
			SKU:       m.SKU,
			Tag:       m.Tag,
			Lessor:    m.Lessor,
			Quantity:  m.SignedQuantity(),
			Requester: requester,
		})
	}
	return rows, nil
}

// WriteCSV escribe las filas separadas por ';' en la codificación indicada.
func (e *MovementExporter) WriteCSV(w io.Writer, rows []Row, enc Encoding) error {
	var tw *transform.Writer
	if enc == EncodingWindows1252 {
		tw = transform.NewWriter(w, encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()))
		w = tw
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.fields(e.loc)); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

// WriteXLSX escribe una planilla con una hoja de movimientos.
func (e *MovementExporter) WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, bold)
	}

	for i, r := range rows {
		row := i + 2
		values := []any{
			r.Date.In(e.loc).Format(dateLayout),
			r.ShortID,
			r.Kind,
			r.Product,
			r.SKU,
			r.Tag,
			r.Lessor,
			r.Quantity.InexactFloat64(),
			r.Requester,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	widths := []float64{12, 10, 22, 32, 12, 12, 18, 10, 28}
	for i, wd := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, wd)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}
