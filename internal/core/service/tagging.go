package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/catalog-service/internal/core/domain"
)

const (
	TagHighProtein = "high-protein"
	TagLowFat      = "low-fat"
	TagHighFiber   = "high-fiber"
	TagLowCalorie  = "low-calorie"
)

// Tagger derives the searchable tags of a variant.
type Tagger interface {
	Tags(detail domain.VariantDetail) []string
}

type nameRule struct {
	contains string
	tags     []string
}

// RuleTagger tags by keywords in the product name and by energy.
type RuleTagger struct {
	nameRules       []nameRule
	lowCalorieBelow decimal.Decimal
}

func NewRuleTagger() *RuleTagger {
	return &RuleTagger{
		nameRules: []nameRule{
			{contains: "chicken", tags: []string{TagHighProtein, TagLowFat}},
			{contains: "brown rice", tags: []string{TagHighFiber}},
		},
		lowCalorieBelow: decimal.NewFromInt(200),
	}
}

// Tags returns a sorted, deduplicated tag set. The same input always yields
// the same output.
func (r *RuleTagger) Tags(detail domain.VariantDetail) []string {
	name := strings.ToLower(detail.Product.Name)

	set := make(map[string]struct{})
	for _, rule := range r.nameRules {
		if strings.Contains(name, rule.contains) {
			for _, t := range rule.tags {
				set[t] = struct{}{}
			}
		}
	}
	if detail.Variant.Energy.LessThan(r.lowCalorieBelow) {
		set[TagLowCalorie] = struct{}{}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
