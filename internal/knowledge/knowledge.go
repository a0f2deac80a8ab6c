// Package knowledge holds the static disease treatment table used to enrich
// classifier predictions.
package knowledge

import (
	_ "embed" // Embedding the disease table into the binary.
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed diseases.yaml
var diseasesYAML []byte

// DiseaseID names a crop and condition pair, e.g. "Tomato__Late_blight".
type DiseaseID string

// DisplayName renders the identifier for people: "Tomato__Late_blight"
// becomes "Tomato → Late_blight".
func (id DiseaseID) DisplayName() string {
	return strings.NewReplacer("__", " → ", "_(", " (").Replace(string(id))
}

// Record is the treatment advice for one disease. Records are shared and
// must be treated as read-only.
type Record struct {
	ID         DiseaseID `yaml:"id" json:"id"`
	Pesticide  string    `yaml:"pesticide" json:"pesticide"`
	Dosage     string    `yaml:"dosage" json:"dosage"`
	Cost       string    `yaml:"cost" json:"cost"`
	Treatment  string    `yaml:"treatment" json:"treatment"`
	Prevention string    `yaml:"prevention" json:"prevention"`
	Steps      []string  `yaml:"steps" json:"steps"`
	Timing     string    `yaml:"timing" json:"timing"`
	Safety     string    `yaml:"safety" json:"safety"`
	Links      []string  `yaml:"links" json:"links"`
}

// Fallback is returned for identifiers missing from the table.
var Fallback = Record{
	Pesticide:  "Consult agricultural expert",
	Dosage:     "N/A",
	Cost:       "Varies",
	Treatment:  "Consult with agricultural expert for specific treatment",
	Prevention: "Monitor plant health regularly",
	Steps: []string{
		"Take clear photos of affected leaves",
		"Contact your local agricultural extension office",
		"Isolate affected plants until diagnosed",
	},
	Timing: "As soon as possible",
	Safety: "Do not apply chemicals without expert guidance",
	Links:  []string{"https://plantvillage.psu.edu/"},
}

// Base is an immutable, ordered disease table.
type Base struct {
	order   []DiseaseID
	records map[DiseaseID]Record
}

// Parse builds a Base from YAML. Entry order defines class indices.
func Parse(data []byte) (*Base, error) {
	var entries []Record
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse disease table: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("disease table is empty")
	}

	b := &Base{
		order:   make([]DiseaseID, 0, len(entries)),
		records: make(map[DiseaseID]Record, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("disease table entry %d has no id", i)
		}
		if _, dup := b.records[e.ID]; dup {
			return nil, fmt.Errorf("duplicate disease id %q", e.ID)
		}
		b.order = append(b.order, e.ID)
		b.records[e.ID] = e
	}
	return b, nil
}

var (
	defaultBase *Base
	defaultErr  error
	defaultOnce sync.Once
)

// Default returns the embedded table, parsed once per process.
func Default() (*Base, error) {
	defaultOnce.Do(func() {
		defaultBase, defaultErr = Parse(diseasesYAML)
	})
	return defaultBase, defaultErr
}

// Lookup returns the record for id, or the fallback record carrying id when
// the table has no entry. The bool reports whether the entry was found.
func (b *Base) Lookup(id DiseaseID) (Record, bool) {
	if r, ok := b.records[id]; ok {
		return r, true
	}
	r := Fallback
	r.ID = id
	return r, false
}

// Classes returns identifiers in class-index order.
func (b *Base) Classes() []DiseaseID {
	out := make([]DiseaseID, len(b.order))
	copy(out, b.order)
	return out
}

// ClassAt maps a model output index to its identifier.
func (b *Base) ClassAt(i int) (DiseaseID, bool) {
	if i < 0 || i >= len(b.order) {
		return "", false
	}
	return b.order[i], true
}

func (b *Base) Len() int {
	return len(b.order)
}
