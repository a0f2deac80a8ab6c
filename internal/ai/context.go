package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiseaseContext is what the caller knows about the plant being discussed,
// usually the last diagnosis shown to the user. All fields are optional.
type DiseaseContext struct {
	Disease    string  `json:"disease_name,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Treatment  string  `json:"treatment,omitempty"`
	Pesticide  string  `json:"pesticide,omitempty"`
	Dosage     string  `json:"dosage,omitempty"`
	Prevention string  `json:"prevention,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// UnmarshalJSON accepts either a diagnosis object or a free-text string.
func (c *DiseaseContext) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = DiseaseContext{Notes: strings.TrimSpace(s)}
		return nil
	}

	type plain DiseaseContext
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("context must be a string or a diagnosis object: %w", err)
	}
	*c = DiseaseContext(p)
	return nil
}

// IsEmpty reports whether no context was supplied.
func (c DiseaseContext) IsEmpty() bool {
	return c == DiseaseContext{}
}

// Summary renders the context as prompt lines.
func (c DiseaseContext) Summary() string {
	if c.IsEmpty() {
		return "No diagnosis available."
	}
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Detected disease", c.Disease)
	if c.Confidence > 0 {
		fmt.Fprintf(&b, "Model confidence: %.2f%%\n", c.Confidence)
	}
	line("Recommended treatment", c.Treatment)
	line("Pesticide", c.Pesticide)
	line("Dosage", c.Dosage)
	line("Prevention", c.Prevention)
	line("Farmer notes", c.Notes)
	return strings.TrimSpace(b.String())
}

// Topic is a coarse classification of a farmer's question.
type Topic string

const (
	TopicDisease    Topic = "disease"
	TopicPest       Topic = "pest"
	TopicNutrition  Topic = "nutrition"
	TopicIrrigation Topic = "irrigation"
	TopicGeneral    Topic = "general"
)

var topicKeywords = []struct {
	topic    Topic
	keywords []string
}{
	{TopicPest, []string{
		"insect", "pest", "aphid", "whitefly", "mite", "caterpillar", "worm", "beetle",
		"कीट", "कीड़े", "कीड़ा", "इल्ली", "माहू", "keede", "keeda",
	}},
	{TopicDisease, []string{
		"disease", "blight", "rust", "spot", "mildew", "rot", "virus", "fungus", "fungicide", "spray",
		"रोग", "बीमारी", "झुलसा", "फफूंद", "दवा", "bimari", "rog", "dawa",
	}},
	{TopicNutrition, []string{
		"fertilizer", "fertiliser", "urea", "nitrogen", "potash", "compost", "manure", "yellow",
		"खाद", "उर्वरक", "यूरिया", "पीले", "khad",
	}},
	{TopicIrrigation, []string{
		"water", "irrigation", "drip", "rain", "dry", "moisture",
		"पानी", "सिंचाई", "बारिश", "paani", "sinchai",
	}},
}

// DetectTopic picks the topic whose keywords appear most often. Ties go
// to the earlier topic; no match is TopicGeneral.
func DetectTopic(question string) Topic {
	q := strings.ToLower(question)

	best, bestCount := TopicGeneral, 0
	for _, group := range topicKeywords {
		count := 0
		for _, keyword := range group.keywords {
			if strings.Contains(q, keyword) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = group.topic, count
		}
	}
	return best
}
