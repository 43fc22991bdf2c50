package estimate

import (
	"fmt"
	"sort"
)

// NewSectionRows is how many empty rows a freshly added section starts with.
const NewSectionRows = 4

// SectionCatalog resolves section identifiers to titles and fixes their
// display order.
type SectionCatalog interface {
	Lookup(id string) (title string, ok bool)
	Order() []string
}

// SectionInfo is an id/title pair offered for adding.
type SectionInfo struct {
	ID    SectionID `json:"id"`
	Title string    `json:"title"`
}

// Edit is a single cell change delivered by an editor client.
type Edit struct {
	SectionID SectionID `json:"sectionId"`
	RowIndex  int       `json:"rowIndex"`
	Field     Field     `json:"field"`
	Value     Value     `json:"value"`
}

// Estimate is the mutable editing state of one project's estimate. It is
// owned by its caller; the calculation functions only read it.
type Estimate struct {
	Sections map[SectionID]*Section `json:"sections"`
}

// New returns an estimate with no sections.
func New() *Estimate {
	return &Estimate{Sections: make(map[SectionID]*Section)}
}

// AddSection adds a catalog section with NewSectionRows empty rows.
func (e *Estimate) AddSection(cat SectionCatalog, id SectionID) error {
	if _, ok := e.Sections[id]; ok {
		return fmt.Errorf("%w: %s", ErrSectionExists, id)
	}
	title, ok := cat.Lookup(string(id))
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, id)
	}

	rows := make([]Row, NewSectionRows)
	for i := range rows {
		rows[i] = NewRow()
	}
	e.Sections[id] = &Section{ID: id, Title: title, Rows: rows}
	return nil
}

// RemoveSection drops a section and all its rows.
func (e *Estimate) RemoveSection(id SectionID) error {
	if _, ok := e.Sections[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	delete(e.Sections, id)
	return nil
}

// AddRow appends an empty row to a section.
func (e *Estimate) AddRow(id SectionID) error {
	s, err := e.section(id)
	if err != nil {
		return err
	}
	s.Rows = append(s.Rows, NewRow())
	return nil
}

// RemoveRow deletes a row. The last row of a section is reset to empty
// instead, so a section always keeps at least one row.
func (e *Estimate) RemoveRow(id SectionID, index int) error {
	s, err := e.row(id, index)
	if err != nil {
		return err
	}

	if len(s.Rows) == 1 {
		s.Rows[0] = NewRow()
		return nil
	}
	s.Rows = append(s.Rows[:index], s.Rows[index+1:]...)
	return nil
}

// Apply sets one cell and recalculates the row when the field feeds the
// totals. It reports whether a recalculation happened.
func (e *Estimate) Apply(edit Edit) (bool, error) {
	s, err := e.row(edit.SectionID, edit.RowIndex)
	if err != nil {
		return false, err
	}

	r := &s.Rows[edit.RowIndex]
	if err := r.Set(edit.Field, edit.Value); err != nil {
		return false, err
	}
	if !edit.Field.AffectsTotals() {
		return false, nil
	}
	r.Recalculate()
	return true, nil
}

// SetProviders replaces a row's providers with the complete entries of
// providers. An allocation whose filled-in entries do not sum to 100 is
// rejected and leaves the row untouched.
func (e *Estimate) SetProviders(id SectionID, index int, providers []Provider) (ProviderValidation, error) {
	s, err := e.row(id, index)
	if err != nil {
		return ProviderValidation{}, err
	}

	check := SaveCheck(providers)
	if !check.Valid {
		return check, fmt.Errorf("%w: %s row %d: %s", ErrInvalidProviders, id, index, check.Message)
	}

	complete := CompleteProviders(providers)
	if complete == nil {
		complete = []Provider{}
	}
	s.Rows[index].Providers = complete
	return check, nil
}

// Recalculate refreshes the derived totals of every row.
func (e *Estimate) Recalculate() {
	for _, s := range e.Sections {
		for i := range s.Rows {
			s.Rows[i].Recalculate()
		}
	}
}

// Metrics computes the project snapshot from the current state.
func (e *Estimate) Metrics() Metrics {
	return ProjectTotals(e.Sections)
}

// ProviderIssue locates a row whose allocation is invalid.
type ProviderIssue struct {
	SectionID SectionID          `json:"sectionId"`
	RowIndex  int                `json:"rowIndex"`
	Check     ProviderValidation `json:"check"`
}

// ProviderIssues lists every row whose filled-in providers do not sum to
// 100.
func (e *Estimate) ProviderIssues() []ProviderIssue {
	var issues []ProviderIssue
	for _, id := range e.sortedIDs(nil) {
		for i, r := range e.Sections[id].Rows {
			if check := SaveCheck(r.Providers); !check.Valid {
				issues = append(issues, ProviderIssue{SectionID: id, RowIndex: i, Check: check})
			}
		}
	}
	return issues
}

// CompactProviders reduces every row's providers to its complete entries.
func (e *Estimate) CompactProviders() {
	for _, s := range e.Sections {
		for i := range s.Rows {
			complete := CompleteProviders(s.Rows[i].Providers)
			if complete == nil {
				complete = []Provider{}
			}
			s.Rows[i].Providers = complete
		}
	}
}

// Ordered returns the sections in catalog order; ids the catalog does not
// know come last, sorted.
func (e *Estimate) Ordered(cat SectionCatalog) []*Section {
	ids := e.sortedIDs(cat)
	out := make([]*Section, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.Sections[id])
	}
	return out
}

// AvailableSections lists catalog sections not yet added, in catalog order.
func (e *Estimate) AvailableSections(cat SectionCatalog) []SectionInfo {
	var out []SectionInfo
	for _, id := range cat.Order() {
		if _, ok := e.Sections[SectionID(id)]; ok {
			continue
		}
		title, _ := cat.Lookup(id)
		out = append(out, SectionInfo{ID: SectionID(id), Title: title})
	}
	return out
}

func (e *Estimate) sortedIDs(cat SectionCatalog) []SectionID {
	var ids []SectionID
	seen := make(map[SectionID]bool, len(e.Sections))
	if cat != nil {
		for _, id := range cat.Order() {
			sid := SectionID(id)
			if _, ok := e.Sections[sid]; ok {
				ids = append(ids, sid)
				seen[sid] = true
			}
		}
	}

	var rest []SectionID
	for id := range e.Sections {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(ids, rest...)
}

func (e *Estimate) section(id SectionID) (*Section, error) {
	s, ok := e.Sections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	return s, nil
}

func (e *Estimate) row(id SectionID, index int) (*Section, error) {
	s, err := e.section(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.Rows) {
		return nil, fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, id, index)
	}
	return s, nil
}
