// Package pdf genera la tarjeta de inventario (kardex) en PDF.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: KARDEX + política        │  Periodo + emisión      │
//	│  Producto / Bodega / Posición                                │
//	│  ─────────────────────────────────────────────────────────  │
//	│  SALDO INICIAL                                               │
//	│  TABLA: Fecha | Tipo | Comprobante | Cant | C.Unit | Costo | │
//	│         Saldo cant | Saldo valor                             │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Entradas / Salidas / SALDO FINAL                   │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
)

var _ inventory.KardexPDFGenerator = (*KardexPDFGenerator)(nil)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorIn      = &props.Color{Red: 0, Green: 110, Blue: 60}
	colorOut     = &props.Color{Red: 160, Green: 30, Blue: 30}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// KardexPDFGenerator implementa inventory.KardexPDFGenerator usando Maroto v2.
type KardexPDFGenerator struct {
	printer *message.Printer
	now     func() time.Time
}

// NewKardexPDFGenerator construye el generador con formato numérico es-CO.
func NewKardexPDFGenerator() *KardexPDFGenerator {
	return &KardexPDFGenerator{
		printer: message.NewPrinter(language.MustParse("es-CO")),
		now:     time.Now,
	}
}

// GenerateKardexPDF genera el PDF y devuelve sus bytes.
func (g *KardexPDFGenerator) GenerateKardexPDF(_ context.Context, report *inventory.KardexReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("pdf: reporte vacío")
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 8}).
		WithTitle("Kardex "+report.ProductID, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(g.headerRow(report))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(g.balanceRow("SALDO INICIAL", report.OpeningQty, report.OpeningValue))

	m.AddRows(tableHeaderRow())
	for _, r := range g.eventRows(report.Events) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(g.totalsRow(report))
	m.AddRows(g.balanceRow("SALDO FINAL", report.ClosingQty, report.ClosingValue))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func (g *KardexPDFGenerator) headerRow(r *inventory.KardexReport) core.Row {
	periodo := r.From.Format("02/01/2006") + " – " + r.To.Format("02/01/2006")
	return row.New(22).Add(
		col.New(7).Add(
			text.New("KARDEX DE INVENTARIO", props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("Producto: "+r.ProductID, props.Text{Size: 8, Top: 9, Color: colorGray}),
			text.New("Bodega: "+r.WarehouseID, props.Text{Size: 8, Top: 13, Color: colorGray}),
			text.New("Posición: "+r.PositionID, props.Text{Size: 7, Top: 17, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("Método: "+policyLabel(r.Policy), props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New("Periodo: "+periodo, props.Text{Size: 8, Align: align.Right, Top: 8}),
			text.New("Emitido: "+g.now().Format("02/01/2006 15:04"), props.Text{
				Size: 7, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func (g *KardexPDFGenerator) balanceRow(label string, qty, value decimal.Decimal) core.Row {
	return row.New(8).Add(
		col.New(6).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 9, Color: colorPrimary, Top: 2,
		})),
		col.New(2).Add(text.New(g.qty(qty), props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 2,
		})),
		col.New(4).Add(text.New("$"+g.money(value), props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 2, Right: 1,
		})),
	)
}

// tableHeaderRow: cabecera de la tabla de movimientos.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 7, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Fecha", 1, align.Left),
		h("Tipo", 1, align.Left),
		h("Comprobante", 2, align.Left),
		h("Cantidad", 1, align.Right),
		h("Costo unit.", 2, align.Right),
		h("Costo", 2, align.Right),
		h("Saldo", 1, align.Right),
		h("Valor saldo", 2, align.Right),
	)
}

// eventRows: una fila por evento; bajo FIFO, una fila extra por lote consumido.
func (g *KardexPDFGenerator) eventRows(events []inventory.KardexEvent) []core.Row {
	result := make([]core.Row, 0, len(events))
	for _, e := range events {
		c := colorIn
		if e.Quantity.IsNegative() {
			c = colorOut
		}
		cell := func(s string, size int, a align.Type, color *props.Color) core.Col {
			return col.New(size).Add(text.New(s, props.Text{
				Size: 7, Align: a, Top: 1, Left: 1, Right: 1, Color: color,
			}))
		}
		result = append(result, row.New(6).Add(
			cell(e.Date.Format("02/01/06"), 1, align.Left, nil),
			cell(string(e.Direction), 1, align.Left, c),
			cell(nonEmpty(e.VoucherID, "—"), 2, align.Left, nil),
			cell(g.qty(e.Quantity), 1, align.Right, c),
			cell("$"+g.cost(e.UnitCost), 2, align.Right, nil),
			cell("$"+g.money(e.LineCost), 2, align.Right, c),
			cell(g.qty(e.RunningQty), 1, align.Right, nil),
			cell("$"+g.money(e.RunningValue), 2, align.Right, nil),
		))
		for _, a := range e.Consumptions {
			result = append(result, row.New(4).Add(
				col.New(2),
				col.New(10).Add(text.New(
					fmt.Sprintf("lote %s: %s × $%s", shortID(a.LotID), g.qty(a.Quantity), g.cost(a.UnitCost)),
					props.Text{Size: 6, Color: colorGray, Left: 1},
				)),
			))
		}
	}
	return result
}

func (g *KardexPDFGenerator) totalsRow(r *inventory.KardexReport) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 8, Align: align.Right, Right: 1})
	}
	return row.New(10).Add(
		col.New(4),
		col.New(2).Add(label("Entradas:"), value("")),
		col.New(2).Add(value(g.qty(r.TotalInQty)), value("$"+g.money(r.TotalInValue))),
		col.New(2).Add(label("Salidas:")),
		col.New(2).Add(value(g.qty(r.TotalOutQty)), value("$"+g.money(r.TotalOutValue))),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (g *KardexPDFGenerator) qty(d decimal.Decimal) string {
	return g.printer.Sprintf("%v", number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(4)))
}

func (g *KardexPDFGenerator) cost(d decimal.Decimal) string {
	return g.printer.Sprintf("%v", number.Decimal(d.InexactFloat64(), number.MinFractionDigits(2), number.MaxFractionDigits(4)))
}

func (g *KardexPDFGenerator) money(d decimal.Decimal) string {
	return g.printer.Sprintf("%v", number.Decimal(d.InexactFloat64(), number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func policyLabel(p entity.ValuationPolicy) string {
	switch p {
	case entity.PolicyFIFO:
		return "PEPS (FIFO)"
	case entity.PolicyWeightedAverage:
		return "Promedio ponderado"
	}
	return string(p)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
