package estimate

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

type exportLine struct {
	Section       string `csv:"Section"`
	Service       string `csv:"Service"`
	Description   string `csv:"Description"`
	Duration      string `csv:"Duration"`
	Unit          string `csv:"Unit"`
	Qty           string `csv:"Qty"`
	PriceEst      string `csv:"Price (est)"`
	TotalEst      int64  `csv:"Total (est)"`
	Discount      string `csv:"Discount"`
	Factor        string `csv:"Factor"`
	CR            string `csv:"CR"`
	Providers     string `csv:"Providers"`
	PriceAct      string `csv:"Price (act)"`
	TotalAct      int64  `csv:"Total (act)"`
	Profitability int64  `csv:"Profitability %"`
}

// ExportCSV writes one line per row, sections in catalog order.
func ExportCSV(e *Estimate, cat SectionCatalog, w io.Writer) error {
	lines := []*exportLine{}
	for _, s := range e.Ordered(cat) {
		for _, r := range s.Rows {
			lines = append(lines, &exportLine{
				Section:       s.Title,
				Service:       r.Service.String(),
				Description:   r.Description.String(),
				Duration:      r.Duration.String(),
				Unit:          r.Unit.String(),
				Qty:           r.Qty.String(),
				PriceEst:      r.PriceEst.String(),
				TotalEst:      r.TotalEst,
				Discount:      r.Discount.String(),
				Factor:        r.Factor.String(),
				CR:            r.CR.String(),
				Providers:     formatProviders(r.Providers),
				PriceAct:      r.PriceAct.String(),
				TotalAct:      r.TotalAct,
				Profitability: r.Profitability,
			})
		}
	}

	if err := gocsv.Marshal(lines, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func formatProviders(providers []Provider) string {
	parts := make([]string, 0, len(providers))
	for _, p := range providers {
		parts = append(parts, fmt.Sprintf("%s:%d", p.Name, p.Share()))
	}
	return strings.Join(parts, ";")
}
