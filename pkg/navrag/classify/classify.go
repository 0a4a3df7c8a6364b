package classify

import (
	"strings"

	"github.com/cognicore/navrag/pkg/navrag/situation"
)

// Situation tags used by the default taxonomy. They must match SituationType
// names in the knowledge graph exactly.
const (
	TagRestrictedVisibility = "restricted visibility"
	TagCrossing             = "crossing"
	TagHeadOn               = "head-on"
	TagOvertaking           = "overtaking"
	TagVesselCategory       = "vessel-category duty"
	TagNarrowChannel        = "narrow channel"
	TagGeneralNavigation    = "general navigation"
)

// Field selects which part of a perception a predicate inspects.
type Field string

const (
	FieldVisibility   Field = "visibility"
	FieldTargetAspect Field = "target_aspect" // bearing and relative_position
	FieldTargetType   Field = "target_type"
	FieldOwnPosition  Field = "own_position"
)

// Predicate tags a situation when any keyword occurs in the selected field.
type Predicate struct {
	Tag      string
	Field    Field
	Keywords []string // lowercase
}

// Classifier maps perceptions to situation tags.
type Classifier struct {
	predicates []Predicate
	fallback   string
}

// New creates a classifier from ordered predicates. An empty fallback uses
// TagGeneralNavigation.
func New(predicates []Predicate, fallback string) *Classifier {
	if fallback == "" {
		fallback = TagGeneralNavigation
	}
	c := &Classifier{fallback: fallback}
	for _, p := range predicates {
		c.Add(p)
	}
	return c
}

// Default returns the classifier with the built-in COLREGs taxonomy.
func Default() *Classifier {
	return New(DefaultPredicates(), TagGeneralNavigation)
}

// Add appends a predicate, normalizing its keywords to lowercase.
func (c *Classifier) Add(p Predicate) {
	normalized := make([]string, 0, len(p.Keywords))
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	p.Keywords = normalized
	c.predicates = append(c.predicates, p)
}

// Tags lists every tag the classifier can produce, fallback last.
func (c *Classifier) Tags() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c.predicates {
		if _, ok := seen[p.Tag]; ok {
			continue
		}
		seen[p.Tag] = struct{}{}
		out = append(out, p.Tag)
	}
	if _, ok := seen[c.fallback]; !ok {
		out = append(out, c.fallback)
	}
	return out
}

// Classify returns the union of tags whose predicates match, in predicate
// order. When nothing matches it returns the fallback tag alone.
func (c *Classifier) Classify(p situation.Perception) []string {
	matched := make(map[string]struct{})
	var tags []string

	for _, pred := range c.predicates {
		if _, ok := matched[pred.Tag]; ok {
			continue
		}
		if !pred.matches(p) {
			continue
		}
		matched[pred.Tag] = struct{}{}
		tags = append(tags, pred.Tag)
	}

	if len(tags) == 0 {
		return []string{c.fallback}
	}
	return tags
}

func (pred Predicate) matches(p situation.Perception) bool {
	switch pred.Field {
	case FieldVisibility:
		return containsAny(p.Visibility, pred.Keywords)
	case FieldOwnPosition:
		return containsAny(p.OwnShip.Position, pred.Keywords)
	case FieldTargetAspect:
		for _, t := range p.Targets {
			if containsAny(t.Bearing, pred.Keywords) || containsAny(t.RelativePosition, pred.Keywords) {
				return true
			}
		}
	case FieldTargetType:
		for _, t := range p.Targets {
			if containsAny(t.Type, pred.Keywords) {
				return true
			}
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DefaultPredicates returns the built-in predicate list. Keywords cover the
// English and Korean vocabulary used in bridge reports.
func DefaultPredicates() []Predicate {
	return []Predicate{
		{
			Tag:   TagRestrictedVisibility,
			Field: FieldVisibility,
			Keywords: []string{
				"fog", "mist", "haze", "snow", "rain", "restricted", "poor visibility",
				"50m", "50 m", "100m", "100 m",
				"안개", "농무", "강우", "강설", "폭우", "폭설", "시정 제한", "시정제한",
				"시정 불량", "시정불량", "제한시계", "제한 시계", "50미터", "100미터",
			},
		},
		{
			Tag:      TagCrossing,
			Field:    FieldTargetAspect,
			Keywords: []string{"starboard", "stbd", "우현", "우측"},
		},
		{
			Tag:      TagHeadOn,
			Field:    FieldTargetAspect,
			Keywords: []string{"dead ahead", "ahead", "head-on", "head on", "reciprocal", "정면", "정선수", "전방"},
		},
		{
			Tag:      TagOvertaking,
			Field:    FieldTargetAspect,
			Keywords: []string{"astern", "overtak", "후방", "추월", "선미"},
		},
		{
			Tag:      TagVesselCategory,
			Field:    FieldTargetType,
			Keywords: []string{"fishing", "trawler", "어선", "어로"},
		},
		{
			Tag:   TagNarrowChannel,
			Field: FieldOwnPosition,
			Keywords: []string{
				"narrow channel", "fairway", "tss", "traffic separation", "channel",
				"협수로", "통항로", "분리통항",
			},
		},
	}
}
