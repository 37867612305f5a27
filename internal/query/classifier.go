package query

import "strings"

// Intent is the kind of answer a prompt asks for.
type Intent string

const (
	IntentDataQuestion  Intent = "data_question"
	IntentVisualization Intent = "visualization"
)

// DefaultVisualizationKeywords trigger the visualization path.
var DefaultVisualizationKeywords = []string{"plot", "visualize", "graph", "chart"}

// Classifier decides how a prompt is answered.
type Classifier interface {
	Classify(prompt string) Intent
}

// KeywordClassifier flags a prompt as visualization when it contains any
// keyword as a case-insensitive substring. It is a heuristic: "explain this
// chart of revenue" is classified as visualization too.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier creates a classifier. Empty keywords select
// DefaultVisualizationKeywords.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	var kw []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) == 0 {
		kw = DefaultVisualizationKeywords
	}
	return &KeywordClassifier{keywords: kw}
}

func (c *KeywordClassifier) Classify(prompt string) Intent {
	p := strings.ToLower(prompt)
	for _, k := range c.keywords {
		if strings.Contains(p, k) {
			return IntentVisualization
		}
	}
	return IntentDataQuestion
}
