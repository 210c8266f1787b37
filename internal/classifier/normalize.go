package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/arbovm/levenshtein"

	"go-kart-insurance/pkg/models"
)

// Normalizer maps backend labels onto the canonical kart type names and
// orders predictions by confidence.
type Normalizer struct {
	canonical map[string]string
	keys      []string
}

func NewNormalizer(labels []string) *Normalizer {
	if len(labels) == 0 {
		labels = DefaultKartTypes
	}
	n := &Normalizer{canonical: make(map[string]string, len(labels))}
	for _, label := range labels {
		key := labelKey(label)
		if _, dup := n.canonical[key]; dup {
			continue
		}
		n.canonical[key] = label
		n.keys = append(n.keys, key)
	}
	return n
}

func labelKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

// Canonical returns the known label for s. Small typos snap to the unique
// closest label; anything else is returned unchanged.
func (n *Normalizer) Canonical(s string) string {
	key := labelKey(s)
	if label, ok := n.canonical[key]; ok {
		return label
	}

	limit := len(key) / 4
	if limit > 2 {
		limit = 2
	}
	if limit == 0 {
		return s
	}

	best, bestDist, tie := "", limit+1, false
	for _, k := range n.keys {
		d := levenshtein.Distance(key, k)
		switch {
		case d < bestDist:
			best, bestDist, tie = k, d, false
		case d == bestDist:
			tie = true
		}
	}
	if best == "" || tie {
		return s
	}
	return n.canonical[best]
}

// Normalize validates raw predictions, canonicalizes labels and sorts by
// descending confidence. Equal confidences keep backend order.
func (n *Normalizer) Normalize(raw []models.Prediction) ([]models.Prediction, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no predictions", ErrMalformedResponse)
	}

	out := make([]models.Prediction, 0, len(raw))
	for i, p := range raw {
		if strings.TrimSpace(p.Label) == "" {
			return nil, fmt.Errorf("%w: prediction %d has an empty label", ErrMalformedResponse, i)
		}
		if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("%w: prediction %d has confidence %v", ErrMalformedResponse, i, p.Confidence)
		}
		out = append(out, models.Prediction{Label: n.Canonical(p.Label), Confidence: p.Confidence})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}
