package classify

import (
	"fmt"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

// Category scores matched processes of one signature set.
type Category struct {
	Name      string `mapstructure:"name"`
	Profile   string `mapstructure:"profile"`
	Signature string `mapstructure:"signature"`
	Weight    int    `mapstructure:"weight"`
}

// Weighted picks the category with the highest score (matches x weight).
// Ties go to the category declared first. Without any score, a GPU busier
// than FallbackUtilization selects FallbackProfile; otherwise the catalog
// default.
type Weighted struct {
	categories          []Category
	fallbackProfile     string
	fallbackUtilization int
}

func NewWeighted(catalog *profile.Catalog, categories []Category, fallbackProfile string, fallbackUtilization int) (*Weighted, error) {
	errFactory := errors.New()

	for i, c := range categories {
		if c.Name == "" {
			c.Name = fmt.Sprintf("#%d", i)
		}
		if !catalog.Has(c.Profile) {
			return nil, errFactory.WithData(ErrInvalidCategory, fmt.Sprintf("%s: unknown profile %q", c.Name, c.Profile))
		}
		if c.Signature == "" {
			return nil, errFactory.WithData(ErrInvalidCategory, c.Name+": missing signature")
		}
		if c.Weight <= 0 {
			return nil, errFactory.WithData(ErrInvalidCategory, c.Name+": weight must be positive")
		}
	}

	if fallbackProfile != "" && !catalog.Has(fallbackProfile) {
		return nil, errFactory.WithData(ErrInvalidCategory, "unknown fallback profile "+fallbackProfile)
	}
	if fallbackUtilization <= 0 {
		fallbackUtilization = 1
	}

	return &Weighted{
		categories:          append([]Category(nil), categories...),
		fallbackProfile:     fallbackProfile,
		fallbackUtilization: fallbackUtilization,
	}, nil
}

// Scores returns the score of every category, in declaration order.
func (w *Weighted) Scores(snap telemetry.Snapshot) []int {
	scores := make([]int, len(w.categories))
	for i, c := range w.categories {
		scores[i] = snap.Matched(c.Signature) * c.Weight
	}
	return scores
}

func (w *Weighted) Classify(snap telemetry.Snapshot, catalog *profile.Catalog) string {
	best, bestScore := -1, 0
	for i, score := range w.Scores(snap) {
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best >= 0 {
		return w.categories[best].Profile
	}

	if w.fallbackProfile != "" && snap.GPU.Present && snap.GPU.Utilization >= w.fallbackUtilization {
		return w.fallbackProfile
	}

	return catalog.DefaultName()
}
