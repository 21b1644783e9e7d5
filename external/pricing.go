package external

import "strings"

// StaticPriceTable is the default PriceTable: a prefix-matched in-memory
// table, usually loaded from configuration. Prices are USD per million input
// tokens.
type StaticPriceTable struct {
	prices map[string]float64
}

// NewStaticPriceTable builds a table from model-prefix → price entries.
func NewStaticPriceTable(prices map[string]float64) *StaticPriceTable {
	t := &StaticPriceTable{prices: make(map[string]float64, len(prices))}
	for k, v := range prices {
		t.prices[strings.ToLower(k)] = v
	}
	return t
}

// InputPricePerMTok resolves the price by exact match first, then by the
// longest matching prefix. Returns false when nothing matches.
func (t *StaticPriceTable) InputPricePerMTok(model string) (float64, bool) {
	m := strings.ToLower(model)
	if p, ok := t.prices[m]; ok {
		return p, true
	}
	bestLen := -1
	var best float64
	for prefix, p := range t.prices {
		if strings.HasPrefix(m, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = p
		}
	}
	return best, bestLen >= 0
}

var _ PriceTable = (*StaticPriceTable)(nil)
