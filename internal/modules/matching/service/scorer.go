package matching

import (
	"math"
	"strings"

	"anoa.com/lostfound/internal/entity"
)

// Weights sets how much each factor contributes to a score.
type Weights struct {
	Category float64
	Location float64
	Date     float64
	Keyword  float64
}

func DefaultWeights() Weights {
	return Weights{Category: 0.3, Location: 0.3, Date: 0.2, Keyword: 0.2}
}

var campusLocations = map[string]bool{
	"library": true, "cafeteria": true, "canteen": true, "lab": true, "laboratory": true,
	"classroom": true, "auditorium": true, "gym": true, "parking": true, "gate": true,
	"entrance": true, "office": true, "admin": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
}

// Scorer rates how likely two items describe the same object, from 0 to 1.
// It is pure and symmetric.
type Scorer struct {
	weights Weights
}

func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

func (s *Scorer) Score(a, b *entity.Item) float64 {
	w := s.weights
	total := w.Category + w.Location + w.Date + w.Keyword
	if total <= 0 {
		return 0
	}

	sum := categoryScore(a.Category, b.Category)*w.Category +
		locationScore(a.Location, b.Location)*w.Location +
		dateScore(a, b)*w.Date +
		keywordScore(a, b)*w.Keyword

	return sum / total
}

func categoryScore(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

func locationScore(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	// every equal pair of campus words counts, duplicates included
	shared := 0
	for _, wa := range strings.Fields(a) {
		for _, wb := range strings.Fields(b) {
			if wa == wb && campusLocations[wa] {
				shared++
			}
		}
	}
	if shared > 0 {
		return math.Min(0.8, 0.3*float64(shared))
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.6
	}
	return 0
}

func dateScore(a, b *entity.Item) float64 {
	if a.Date.IsZero() || b.Date.IsZero() {
		return 0
	}

	days := math.Abs(a.Date.Sub(b.Date).Hours()) / 24
	switch {
	case days <= 1:
		return 1
	case days <= 3:
		return 0.8
	case days <= 7:
		return 0.6
	case days <= 14:
		return 0.4
	default:
		return 0.2
	}
}

func keywordScore(a, b *entity.Item) float64 {
	ka, kb := keywords(a), keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}

	shared := 0
	for word := range ka {
		if kb[word] {
			shared++
		}
	}
	union := len(ka) + len(kb) - shared
	return float64(shared) / float64(union)
}

func keywords(it *entity.Item) map[string]bool {
	text := strings.ToLower(it.Title + " " + it.Description)
	set := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		if len(word) > 2 && !stopWords[word] {
			set[word] = true
		}
	}
	return set
}
