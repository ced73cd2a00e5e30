// Package personas holds the debate roster: data records describing how
// each simulated participant frames a problem. Personas are configuration,
// not behavior; the debate engine decides what to do with them.
package personas

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"insight-workflows/internal/models"
)

// Persona is one debate participant's profile.
type Persona struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Style   string   `json:"style"`
	Framing string   `json:"framing"`
	Focus   []string `json:"focus"`
}

// Roster is an id-ordered set of personas.
type Roster struct {
	personas map[string]Persona
}

// Default four-persona roster, compiled in so the engine works without any
// roster file on disk.
var defaultPersonas = []Persona{
	{
		ID:      "analytical",
		Name:    "The Analyst",
		Style:   "evidence-first",
		Framing: "What does the data actually support, and what is still conjecture?",
		Focus:   []string{"metrics", "causality", "confidence intervals"},
	},
	{
		ID:      "operational",
		Name:    "The Operator",
		Style:   "execution-focused",
		Framing: "What can the organization realistically deliver next quarter?",
		Focus:   []string{"capacity", "process", "time to value"},
	},
	{
		ID:      "strategic",
		Name:    "The Strategist",
		Style:   "long-horizon",
		Framing: "How does each option position us twelve months out?",
		Focus:   []string{"market position", "optionality", "second-order effects"},
	},
	{
		ID:      "risk",
		Name:    "The Risk Officer",
		Style:   "downside-first",
		Framing: "What is the worst credible outcome, and can we reverse course?",
		Focus:   []string{"downside exposure", "reversibility", "compliance"},
	},
}

// styleRoster maps a principal's decision style to the persona subset that
// debates on their behalf. The mapping is fixed so the same principal always
// gets the same roster.
var styleRoster = map[models.DecisionStyle][]string{
	models.StyleAnalytical:    {"analytical", "strategic", "risk"},
	models.StyleDirective:     {"operational", "strategic", "risk"},
	models.StyleCollaborative: {"analytical", "operational", "strategic", "risk"},
	models.StyleCautious:      {"risk", "analytical", "operational"},
}

func DefaultRoster() *Roster {
	return newRoster(defaultPersonas)
}

func newRoster(list []Persona) *Roster {
	r := &Roster{personas: make(map[string]Persona, len(list))}
	for _, p := range list {
		r.personas[p.ID] = p
	}
	return r
}

// All returns every persona ordered by id.
func (r *Roster) All() []Persona {
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up one persona by id.
func (r *Roster) Get(id string) (Persona, bool) {
	p, ok := r.personas[id]
	return p, ok
}

// ForDecisionStyle resolves the persona subset for a principal's decision
// style, ordered by id. An unknown style gets the full roster.
func (r *Roster) ForDecisionStyle(style models.DecisionStyle) []Persona {
	ids, ok := styleRoster[style]
	if !ok {
		return r.All()
	}

	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		if p, exists := r.personas[id]; exists {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForIDs resolves an explicit persona selection. Unknown ids are an error,
// not a silent drop: the caller asked for someone who does not exist.
func (r *Roster) ForIDs(ids []string) ([]Persona, error) {
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		p, ok := r.personas[id]
		if !ok {
			return nil, fmt.Errorf("unknown persona id %q", id)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

const rosterSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["id", "name", "style", "framing", "focus"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string", "minLength": 1},
			"style": {"type": "string", "minLength": 1},
			"framing": {"type": "string", "minLength": 1},
			"focus": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "string", "minLength": 1}
			}
		}
	}
}`

// LoadRoster reads a roster file, validates it against the roster schema,
// and rejects duplicate ids.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster validates and decodes roster JSON.
func ParseRoster(data []byte) (*Roster, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rosterSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate roster: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid roster: %s", strings.Join(problems, "; "))
	}

	var list []Persona
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = true
	}

	return newRoster(list), nil
}
