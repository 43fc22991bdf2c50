package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProviders(t *testing.T) {
	tests := []struct {
		name      string
		providers []Provider
		valid     bool
		total     int64
	}{
		{"empty", nil, true, 0},
		{"sixty forty", []Provider{{Percentage: "60"}, {Percentage: "40"}}, true, 100},
		{"sixty thirty", []Provider{{Percentage: "60"}, {Percentage: "30"}}, false, 90},
		{"single hundred", []Provider{{Name: "Acme", Percentage: "100"}}, true, 100},
		{"missing percentage counts zero", []Provider{{Name: "A", Percentage: "100"}, {Name: "B"}}, true, 100},
		{"unparseable counts zero", []Provider{{Percentage: "abc"}, {Percentage: "100"}}, true, 100},
		{"leading digits", []Provider{{Percentage: "50%"}, {Percentage: "50 pct"}}, true, 100},
		{"over", []Provider{{Percentage: "70"}, {Percentage: "40"}}, false, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateProviders(tt.providers)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.total, got.Total)
			if !tt.valid {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestCompleteProviders(t *testing.T) {
	in := []Provider{
		{Name: "Acme", Percentage: "60"},
		{Name: "  ", Percentage: "20"},
		{Name: "Beta", Percentage: ""},
		{Name: "Gamma", Percentage: "0"},
		{Name: "Delta", Percentage: "40"},
	}

	got := CompleteProviders(in)

	assert.Equal(t, []Provider{{Name: "Acme", Percentage: "60"}, {Name: "Delta", Percentage: "40"}}, got)
}

func TestProviderDraft_SaveValid(t *testing.T) {
	d := NewProviderDraft(nil)
	require.Len(t, d.Entries(), 1)
	assert.Equal(t, DraftEditing, d.State())

	d.SetName(0, "Acme")
	d.SetPercentage(0, "60")
	assert.Equal(t, DraftInvalid, d.State())

	d.Add()
	d.SetName(1, "Beta")
	d.SetPercentage(1, "40")
	assert.Equal(t, DraftValid, d.State())

	d.Add() // blank entry is dropped on save
	providers, check, ok := d.Save()

	require.True(t, ok)
	assert.True(t, check.Valid)
	assert.Equal(t, DraftSaved, d.State())
	assert.Equal(t, []Provider{{Name: "Acme", Percentage: "60"}, {Name: "Beta", Percentage: "40"}}, providers)
}

func TestProviderDraft_SaveRejectsInvalid(t *testing.T) {
	d := NewProviderDraft([]Provider{{Name: "Acme", Percentage: "60"}, {Name: "Beta", Percentage: "30"}})

	providers, check, ok := d.Save()

	assert.False(t, ok)
	assert.Nil(t, providers)
	assert.False(t, check.Valid)
	assert.Equal(t, int64(90), check.Total)
	assert.Equal(t, DraftInvalid, d.State())

	d.SetPercentage(1, "40")
	_, _, ok = d.Save()
	assert.True(t, ok)
}

func TestProviderDraft_SaveCountsUnnamedShares(t *testing.T) {
	d := NewProviderDraft([]Provider{{Name: "Acme", Percentage: "60"}, {Name: "Beta", Percentage: "40"}})
	d.Add()
	d.SetPercentage(2, "30")

	providers, check, ok := d.Save()

	assert.False(t, ok)
	assert.Nil(t, providers)
	assert.Equal(t, int64(130), check.Total)
	assert.Equal(t, DraftInvalid, d.State())
}

func TestSaveCheck(t *testing.T) {
	assert.True(t, SaveCheck(nil).Valid)
	assert.True(t, SaveCheck([]Provider{{}, {Name: "  "}}).Valid)
	assert.False(t, SaveCheck([]Provider{{Percentage: "60"}, {Percentage: "30"}}).Valid)
	assert.True(t, SaveCheck([]Provider{{Percentage: "60"}, {Percentage: "40"}}).Valid)
}

func TestProviderDraft_SaveEmptyClearsProviders(t *testing.T) {
	d := NewProviderDraft([]Provider{{Name: "Acme", Percentage: "100"}})
	d.Remove(0)
	require.Len(t, d.Entries(), 1, "a blank entry remains")

	providers, _, ok := d.Save()

	assert.True(t, ok)
	assert.Empty(t, providers)
}

func TestProviderDraft_Cancel(t *testing.T) {
	d := NewProviderDraft([]Provider{{Name: "Acme", Percentage: "100"}})
	d.Cancel()
	d.SetPercentage(0, "10")

	assert.Equal(t, DraftCancelled, d.State())
	assert.Equal(t, Value("100"), d.Entries()[0].Percentage)

	_, _, ok := d.Save()
	assert.False(t, ok)
}
