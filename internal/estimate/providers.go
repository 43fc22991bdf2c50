package estimate

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// RequiredProviderTotal is the sum a non-empty allocation must reach.
const RequiredProviderTotal = 100

// Provider is an external party taking a percentage share of a row's actual
// cost.
type Provider struct {
	Name       string `json:"name"`
	Percentage Value  `json:"percentage"`
}

// Share returns the parsed percentage, 0 when missing or unparseable.
func (p Provider) Share() int64 {
	return parsePercentage(p.Percentage)
}

// Complete reports whether both a name and a positive share are set.
func (p Provider) Complete() bool {
	return strings.TrimSpace(p.Name) != "" && p.Share() > 0
}

// Touched reports whether either field has been filled in.
func (p Provider) Touched() bool {
	return strings.TrimSpace(p.Name) != "" || !p.Percentage.IsBlank()
}

// ProviderValidation is the outcome of checking an allocation. An invalid
// allocation is reported here, never as an error; callers decide whether to
// block a save.
type ProviderValidation struct {
	Valid   bool   `json:"valid"`
	Total   int64  `json:"total"`
	Message string `json:"message,omitempty"`
}

// ValidateProviders accepts an empty list or one whose shares sum to
// exactly 100. Partially filled entries count with their parsed share.
func ValidateProviders(providers []Provider) ProviderValidation {
	if len(providers) == 0 {
		return ProviderValidation{Valid: true}
	}

	total := lo.Reduce(providers, func(sum int64, p Provider, _ int) int64 { return Add(sum, p.Share()) }, 0)
	if total != RequiredProviderTotal {
		return ProviderValidation{
			Total:   total,
			Message: fmt.Sprintf("Total percentage must equal %d%% (currently %d%%)", RequiredProviderTotal, total),
		}
	}

	return ProviderValidation{Valid: true, Total: total}
}

// SaveCheck validates an allocation the way a save does: entries with a
// name but no share, or a share but no name, still count toward the total.
// Only fully blank entries are ignored.
func SaveCheck(providers []Provider) ProviderValidation {
	return ValidateProviders(FilledProviders(providers))
}

// FilledProviders drops entries with neither a name nor a share.
func FilledProviders(providers []Provider) []Provider {
	return lo.Filter(providers, func(p Provider, _ int) bool { return p.Touched() })
}

// CompleteProviders keeps only entries with a name and a positive share.
func CompleteProviders(providers []Provider) []Provider {
	return lo.Filter(providers, func(p Provider, _ int) bool { return p.Complete() })
}

// DraftState is the state of a ProviderDraft.
type DraftState string

const (
	DraftEditing   DraftState = "editing"
	DraftValid     DraftState = "valid"
	DraftInvalid   DraftState = "invalid"
	DraftSaved     DraftState = "saved"
	DraftCancelled DraftState = "cancelled"
)

// ProviderDraft models the provider allocation dialog of a single row.
// Every change re-evaluates validity; Save emits the complete entries only.
type ProviderDraft struct {
	entries []Provider
	state   DraftState
	check   ProviderValidation
}

// NewProviderDraft opens a draft over existing providers, or over one blank
// entry when there are none.
func NewProviderDraft(existing []Provider) *ProviderDraft {
	d := &ProviderDraft{state: DraftEditing}
	if len(existing) > 0 {
		d.entries = append([]Provider(nil), existing...)
	} else {
		d.entries = []Provider{{}}
	}
	return d
}

// Entries returns a copy of the draft entries.
func (d *ProviderDraft) Entries() []Provider {
	return append([]Provider(nil), d.entries...)
}

// State returns the current draft state.
func (d *ProviderDraft) State() DraftState {
	return d.state
}

// Validation returns the last evaluated validation.
func (d *ProviderDraft) Validation() ProviderValidation {
	return d.check
}

// Add appends a blank entry.
func (d *ProviderDraft) Add() {
	if d.closed() {
		return
	}
	d.entries = append(d.entries, Provider{})
	d.evaluate()
}

// Remove drops entry i. Removing the last entry leaves one blank entry.
func (d *ProviderDraft) Remove(i int) {
	if d.closed() || i < 0 || i >= len(d.entries) {
		return
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	if len(d.entries) == 0 {
		d.entries = []Provider{{}}
	}
	d.evaluate()
}

// SetName sets the name of entry i.
func (d *ProviderDraft) SetName(i int, name string) {
	if d.closed() || i < 0 || i >= len(d.entries) {
		return
	}
	d.entries[i].Name = name
	d.evaluate()
}

// SetPercentage sets the share of entry i.
func (d *ProviderDraft) SetPercentage(i int, pct Value) {
	if d.closed() || i < 0 || i >= len(d.entries) {
		return
	}
	d.entries[i].Percentage = pct
	d.evaluate()
}

// Save closes the draft and returns the complete entries. When the filled-in
// entries do not sum to 100 the draft stays open and ok is false.
func (d *ProviderDraft) Save() (providers []Provider, check ProviderValidation, ok bool) {
	if d.closed() {
		return nil, d.check, false
	}

	check = SaveCheck(d.entries)
	if !check.Valid {
		d.state = DraftInvalid
		d.check = check
		return nil, check, false
	}

	d.state = DraftSaved
	d.check = check
	return CompleteProviders(d.entries), check, true
}

// Cancel closes the draft without effect.
func (d *ProviderDraft) Cancel() {
	if d.closed() {
		return
	}
	d.state = DraftCancelled
}

func (d *ProviderDraft) closed() bool {
	return d.state == DraftSaved || d.state == DraftCancelled
}

// evaluate runs validation only once something has been filled in, so a
// fresh blank draft stays in the editing state.
func (d *ProviderDraft) evaluate() {
	if !lo.SomeBy(d.entries, func(p Provider) bool { return p.Touched() }) {
		d.state = DraftEditing
		d.check = ProviderValidation{}
		return
	}

	d.check = ValidateProviders(d.entries)
	if d.check.Valid {
		d.state = DraftValid
	} else {
		d.state = DraftInvalid
	}
}
