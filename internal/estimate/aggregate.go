package estimate

import "github.com/samber/lo"

// SectionID identifies one of the fixed section categories.
type SectionID string

// Section is a titled, ordered group of rows.
type Section struct {
	ID    SectionID `json:"id"`
	Title string    `json:"title"`
	Rows  []Row     `json:"rows"`
}

// Totals holds the estimated and actual sums of a set of rows.
type Totals struct {
	Est int64 `json:"est"`
	Act int64 `json:"act"`
}

// Metrics is the project-level snapshot derived from all sections. It is
// always recomputed from scratch, never patched.
type Metrics struct {
	TotalProjectCost int64 `json:"totalProjectCost"`
	TotalExpenses    int64 `json:"totalExpenses"`
	NetProfit        int64 `json:"netProfit"`
	Profitability    int64 `json:"profitability"`
	// FinalProfit equals NetProfit until adjustments such as bonuses are
	// applied.
	FinalProfit int64 `json:"finalProfit"`
}

// SectionTotal is the running total shown under a section: the sum of the
// actual totals of its rows.
func SectionTotal(rows []Row) int64 {
	return lo.Reduce(rows, func(sum int64, r Row, _ int) int64 { return Add(sum, r.TotalAct) }, 0)
}

// SectionTotals sums both the estimated and actual totals of rows.
func SectionTotals(rows []Row) Totals {
	var t Totals
	for _, r := range rows {
		t.Est = Add(t.Est, r.TotalEst)
		t.Act = Add(t.Act, r.TotalAct)
	}
	return t
}

// ProjectTotals aggregates every row of every section. Profitability uses
// the same policy as a single row.
func ProjectTotals(sections map[SectionID]*Section) Metrics {
	var m Metrics
	for _, s := range sections {
		if s == nil {
			continue
		}
		t := SectionTotals(s.Rows)
		m.TotalProjectCost = Add(m.TotalProjectCost, t.Est)
		m.TotalExpenses = Add(m.TotalExpenses, t.Act)
	}

	m.NetProfit = sub(m.TotalProjectCost, m.TotalExpenses)
	m.Profitability = Profitability(m.TotalProjectCost, m.TotalExpenses)
	m.FinalProfit = m.NetProfit
	return m
}
