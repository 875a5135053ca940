package scoring

import (
	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/model"
)

// Item is one weighted score. A nil Score counts as 0 but its weight still
// counts toward the total.
type Item struct {
	Score  *float64
	Weight float64
}

// ArithmeticMean returns the weighted mean of items. It returns 0 for no
// items or a zero total weight.
func ArithmeticMean(items []Item) float64 {
	var sum, weights float64
	for _, it := range items {
		weights += it.Weight
		if it.Score != nil {
			sum += *it.Score * it.Weight
		}
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// ScoreAllCategories scores every category from the audit results. A
// category without audits keeps only its descriptive fields and does not
// contribute to the overall score.
func ScoreAllCategories(categories []config.Category, results map[string]*model.AuditResult) model.Scores {
	scores := model.Scores{Categories: make([]model.CategoryResult, 0, len(categories))}

	var overall []Item
	for _, c := range categories {
		cr := model.CategoryResult{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Weight:      c.Weight,
		}
		if len(c.Audits) == 0 {
			scores.Categories = append(scores.Categories, cr)
			continue
		}

		items := make([]Item, 0, len(c.Audits))
		for _, ref := range c.Audits {
			var score *float64
			if r, ok := results[ref.ID]; ok && !r.Error {
				score = r.Score
			}
			cr.Audits = append(cr.Audits, model.AuditRef{ID: ref.ID, Weight: ref.Weight, Score: score})
			items = append(items, Item{Score: score, Weight: ref.Weight})
		}
		mean := ArithmeticMean(items)
		cr.Score = &mean
		scores.Categories = append(scores.Categories, cr)
		overall = append(overall, Item{Score: cr.Score, Weight: c.Weight})
	}

	if len(overall) > 0 {
		mean := ArithmeticMean(overall)
		scores.Overall = &mean
	}
	return scores
}
