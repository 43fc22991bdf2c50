package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Section is one of the fixed estimate categories
type Section struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// DefaultSections are the categories every deployment starts with
var DefaultSections = []Section{
	{ID: "pre-production", Title: "Pre Production"},
	{ID: "production", Title: "Production"},
	{ID: "show-execution", Title: "Show Execution"},
	{ID: "project-teams", Title: "Project Teams"},
	{ID: "extra-expenses", Title: "Extra Expenses"},
	{ID: "equipment-rental", Title: "Equipment Rental"},
}

// DefaultHeaders are the column headers shared by all sections
var DefaultHeaders = []string{
	"Service",
	"Description",
	"Duration",
	"Unit",
	"Qty",
	"Price (est)",
	"Total (est)",
	"Discount",
	"Factor",
	"CR",
	"Providers",
	"Price (act)",
	"Total (act)",
	"Profitability %",
}

// Loader holds the section catalog
type Loader struct {
	mu       sync.RWMutex
	order    []string
	sections map[string]*Section
	headers  []string
}

// NewLoader creates a loader populated with the default sections
func NewLoader() *Loader {
	l := &Loader{}
	l.set(DefaultSections, DefaultHeaders)
	return l
}

// LoadFromFile replaces the catalog with the sections of a YAML file.
// Headers fall back to the defaults when the file omits them.
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(cf.Sections) == 0 {
		return fmt.Errorf("catalog defines no sections")
	}

	seen := make(map[string]bool, len(cf.Sections))
	for i, s := range cf.Sections {
		if s.ID == "" {
			return fmt.Errorf("section %d: id is required", i)
		}
		if s.Title == "" {
			return fmt.Errorf("section %q: title is required", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("section %q: duplicate id", s.ID)
		}
		seen[s.ID] = true
	}

	headers := cf.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders
	}

	l.set(cf.Sections, headers)

	slog.Info("section catalog loaded", "file", path, "sections", len(cf.Sections))
	return nil
}

func (l *Loader) set(sections []Section, headers []string) {
	order := make([]string, 0, len(sections))
	byID := make(map[string]*Section, len(sections))
	for i := range sections {
		s := sections[i]
		order = append(order, s.ID)
		byID[s.ID] = &s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = order
	l.sections = byID
	l.headers = append([]string(nil), headers...)
}

// Get retrieves a section by id
func (l *Loader) Get(id string) *Section {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sections[id]
}

// List returns the sections in display order
func (l *Loader) List() []*Section {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Section, 0, len(l.order))
	for _, id := range l.order {
		result = append(result, l.sections[id])
	}
	return result
}

// Headers returns the shared column headers
func (l *Loader) Headers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.headers...)
}

// Lookup returns the title of a section
func (l *Loader) Lookup(id string) (string, bool) {
	s := l.Get(id)
	if s == nil {
		return "", false
	}
	return s.Title, true
}

// Order returns section ids in display order
func (l *Loader) Order() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// catalogFile represents the YAML structure of a catalog file
type catalogFile struct {
	Sections []Section `yaml:"sections"`
	Headers  []string  `yaml:"headers"`
}
