package estimate

import "encoding/json"

type testCatalog struct {
	order  []string
	titles map[string]string
}

func newTestCatalog() *testCatalog {
	return &testCatalog{
		order: []string{"pre-production", "production", "show-execution"},
		titles: map[string]string{
			"pre-production": "Pre Production",
			"production":     "Production",
			"show-execution": "Show Execution",
		},
	}
}

func (c *testCatalog) Lookup(id string) (string, bool) {
	t, ok := c.titles[id]
	return t, ok
}

func (c *testCatalog) Order() []string {
	return c.order
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

func filledRow(qty, priceEst, priceAct Value) Row {
	r := NewRow()
	r.Qty, r.PriceEst, r.PriceAct = qty, priceEst, priceAct
	r.Recalculate()
	return r
}
