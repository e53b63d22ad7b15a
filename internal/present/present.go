// Package present turns class probabilities into the ranked result shown
// to users.
package present

import (
	"fmt"
	"math"
	"sort"

	"github.com/Brownie44l1/leaf-api/internal/labels"
)

// Band is a coarse confidence rating.
type Band string

const (
	BandVeryHigh Band = "very high"
	BandGood     Band = "good"
	BandLow      Band = "low"
)

const DefaultTopK = 5

// BandFor rates a probability in [0,1].
func BandFor(p float64) Band {
	switch {
	case p > 0.9:
		return BandVeryHigh
	case p > 0.7:
		return BandGood
	default:
		return BandLow
	}
}

type Options struct {
	TopK int
	// Catalog supplies disease text. Nil leaves Ranked.Info empty.
	Catalog *labels.Catalog
}

type Entry struct {
	Label       string  `json:"label"`
	Display     string  `json:"display"`
	Plant       string  `json:"plant,omitempty"`
	Condition   string  `json:"condition"`
	Healthy     bool    `json:"healthy"`
	Probability float64 `json:"probability"`
	Percent     float64 `json:"percent"`
}

type Ranked struct {
	Primary    Entry        `json:"prediction"`
	Confidence float64      `json:"confidence"`
	Band       Band         `json:"band"`
	TopK       []Entry      `json:"top_k"`
	All        []Entry      `json:"all"`
	Info       *labels.Info `json:"info,omitempty"`
}

// Present ranks probs, which must be aligned with set.
func Present(probs []float64, set *labels.Set, opts Options) (*Ranked, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("no probabilities to present")
	}
	if len(probs) != set.Len() {
		return nil, fmt.Errorf("got %d probabilities for %d labels", len(probs), set.Len())
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 {
			return nil, fmt.Errorf("probability %d is %v", i, p)
		}
	}

	all := make([]Entry, len(probs))
	for i, p := range probs {
		all[i] = entry(set.Name(i), p)
	}

	ranked := make([]Entry, len(all))
	copy(ranked, all)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	k := opts.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	k = min(k, len(ranked))

	primary := ranked[0]
	r := &Ranked{
		Primary:    primary,
		Confidence: primary.Percent,
		Band:       BandFor(primary.Probability),
		TopK:       ranked[:k],
		All:        all,
	}
	if opts.Catalog != nil {
		info := opts.Catalog.Lookup(primary.Label)
		r.Info = &info
	}
	return r, nil
}

func entry(label string, p float64) Entry {
	parsed := labels.Parse(label)
	return Entry{
		Label:       label,
		Display:     labels.Display(label),
		Plant:       parsed.Plant,
		Condition:   parsed.Condition,
		Healthy:     parsed.Healthy,
		Probability: p,
		Percent:     p * 100,
	}
}
