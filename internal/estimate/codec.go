package estimate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnknownSectionTitle is shown for stored sections the catalog does not know.
const UnknownSectionTitle = "Unknown Section"

// StoredSection is the persisted form of a section: rows as positional
// arrays of the ten raw fields (see RawFields) and providers kept in a
// parallel array.
type StoredSection struct {
	SectionID     SectionID    `json:"sectionId"`
	Rows          [][]Value    `json:"rows"`
	ProvidersData [][]Provider `json:"providersData"`
}

// Encode converts the estimate into its stored form, in catalog order.
// Derived totals are not stored.
func Encode(e *Estimate, cat SectionCatalog) []StoredSection {
	out := make([]StoredSection, 0, len(e.Sections))
	for _, s := range e.Ordered(cat) {
		stored := StoredSection{
			SectionID:     s.ID,
			Rows:          make([][]Value, 0, len(s.Rows)),
			ProvidersData: make([][]Provider, 0, len(s.Rows)),
		}
		for _, r := range s.Rows {
			cells := make([]Value, len(RawFields))
			for i, f := range RawFields {
				cells[i], _ = r.Get(f)
			}
			stored.Rows = append(stored.Rows, cells)

			providers := r.Providers
			if providers == nil {
				providers = []Provider{}
			}
			stored.ProvidersData = append(stored.ProvidersData, providers)
		}
		out = append(out, stored)
	}
	return out
}

// Decode rebuilds an estimate from its stored form. Missing cells are blank,
// blank multipliers become "1", and every row is recalculated.
func Decode(stored []StoredSection, cat SectionCatalog) *Estimate {
	e := New()
	for _, ss := range stored {
		title, ok := cat.Lookup(string(ss.SectionID))
		if !ok {
			title = UnknownSectionTitle
		}

		rows := make([]Row, 0, len(ss.Rows))
		for i, cells := range ss.Rows {
			r := NewRow()
			for j, f := range RawFields {
				if j >= len(cells) || cells[j] == "" {
					continue
				}
				_ = r.Set(f, cells[j])
			}
			if i < len(ss.ProvidersData) && ss.ProvidersData[i] != nil {
				r.Providers = ss.ProvidersData[i]
			}
			r.Recalculate()
			rows = append(rows, r)
		}
		if len(rows) == 0 {
			rows = append(rows, NewRow())
		}

		e.Sections[ss.SectionID] = &Section{ID: ss.SectionID, Title: title, Rows: rows}
	}
	return e
}

// ParseStored reads the stored form from JSON. The document may be the
// array itself or a JSON string holding it, since older clients sent it
// double-encoded. Empty input and null yield no sections.
func ParseStored(data []byte) ([]StoredSection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("failed to decode estimate string: %w", err)
		}
		return ParseStored([]byte(inner))
	}

	var stored []StoredSection
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode estimate: %w", err)
	}
	return stored, nil
}

// Load parses and decodes a stored estimate in one step.
func Load(data []byte, cat SectionCatalog) (*Estimate, error) {
	stored, err := ParseStored(data)
	if err != nil {
		return nil, err
	}
	return Decode(stored, cat), nil
}

// Marshal encodes the estimate to its stored JSON form.
func Marshal(e *Estimate, cat SectionCatalog) ([]byte, error) {
	data, err := json.Marshal(Encode(e, cat))
	if err != nil {
		return nil, fmt.Errorf("failed to encode estimate: %w", err)
	}
	return data, nil
}
