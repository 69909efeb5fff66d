// Package catalog holds the fixed interview content: sections, questions,
// Odyssey paths and dimensions, canvas blocks and the curated voice list.
// The catalog is immutable after load; accessors hand out copies.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

type Framework struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

type Section struct {
	ID       int    `yaml:"id" json:"id"`
	Number   string `yaml:"number" json:"number"`
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`
	Color    string `yaml:"color" json:"color"`
}

type Question struct {
	ID            int      `yaml:"id" json:"id"`
	SectionID     int      `yaml:"section_id" json:"sectionId"`
	Prompt        string   `yaml:"prompt" json:"question"`
	Frameworks    []string `yaml:"frameworks" json:"frameworks"`
	FollowUps     []string `yaml:"follow_ups" json:"followUps"`
	CoachNote     string   `yaml:"coach_note" json:"aiNote,omitempty"`
	OdysseyPlans  bool     `yaml:"odyssey_plans" json:"isOdysseyPlans,omitempty"`
	OdysseyRating bool     `yaml:"odyssey_rating" json:"isOdysseyRating,omitempty"`
}

type CanvasBlock struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
}

type Dimension struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

type Path struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Color       string `yaml:"color" json:"color"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	RatingIntro string `yaml:"rating_intro" json:"ratingIntro"`
}

type Voice struct {
	ID          string `yaml:"id" json:"voice_id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

type document struct {
	Welcome    string        `yaml:"welcome"`
	Frameworks []Framework   `yaml:"frameworks"`
	Sections   []Section     `yaml:"sections"`
	Questions  []Question    `yaml:"questions"`
	Canvas     []CanvasBlock `yaml:"canvas_blocks"`
	Dimensions []Dimension   `yaml:"odyssey_dimensions"`
	Paths      []Path        `yaml:"odyssey_paths"`
	Voices     []Voice       `yaml:"voices"`
}

// Catalog is the parsed, validated interview content.
type Catalog struct {
	doc  document
	main []Question

	questionByID map[int]int
	sectionByID  map[int]int
	voiceByID    map[string]int
}

var ErrInvalidCatalog = errors.New("invalid catalog")

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. It panics if the embedded data is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Load(embedded)
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultCat
}

func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{
		doc:          doc,
		questionByID: make(map[int]int, len(doc.Questions)),
		sectionByID:  make(map[int]int, len(doc.Sections)),
		voiceByID:    make(map[string]int, len(doc.Voices)),
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, fmt.Sprintf(format, args...))
	}
	if len(c.doc.Sections) == 0 || len(c.doc.Questions) == 0 {
		return invalid("sections and questions are required")
	}
	for i, s := range c.doc.Sections {
		if _, dup := c.sectionByID[s.ID]; dup {
			return invalid("duplicate section id %d", s.ID)
		}
		c.sectionByID[s.ID] = i
	}
	known := make(map[string]bool, len(c.doc.Frameworks))
	for _, f := range c.doc.Frameworks {
		known[f.Name] = true
	}
	plans, ratings := 0, 0
	for i, q := range c.doc.Questions {
		if q.ID != i+1 {
			return invalid("question ids must be gapless from 1, got %d at position %d", q.ID, i)
		}
		if _, ok := c.sectionByID[q.SectionID]; !ok {
			return invalid("question %d references unknown section %d", q.ID, q.SectionID)
		}
		if len(q.Frameworks) == 0 {
			return invalid("question %d has no frameworks", q.ID)
		}
		for _, f := range q.Frameworks {
			if !known[f] {
				return invalid("question %d references unknown framework %q", q.ID, f)
			}
		}
		if q.OdysseyPlans {
			plans++
		}
		if q.OdysseyRating {
			ratings++
		} else {
			c.main = append(c.main, q)
		}
		c.questionByID[q.ID] = i
	}
	if plans != 1 || ratings != 1 {
		return invalid("want exactly one odyssey plans and one odyssey rating question, got %d and %d", plans, ratings)
	}
	if len(c.doc.Paths) != 3 {
		return invalid("want 3 odyssey paths, got %d", len(c.doc.Paths))
	}
	if len(c.doc.Dimensions) != 4 {
		return invalid("want 4 odyssey dimensions, got %d", len(c.doc.Dimensions))
	}
	if len(c.doc.Canvas) != 8 {
		return invalid("want 8 canvas blocks, got %d", len(c.doc.Canvas))
	}
	if len(c.doc.Voices) == 0 {
		return invalid("at least one voice is required")
	}
	for i, v := range c.doc.Voices {
		c.voiceByID[v.ID] = i
	}
	return nil
}

func (c *Catalog) Welcome() string { return c.doc.Welcome }

func (c *Catalog) Sections() []Section {
	return append([]Section(nil), c.doc.Sections...)
}

func (c *Catalog) Frameworks() []Framework {
	return append([]Framework(nil), c.doc.Frameworks...)
}

// Questions returns every question in interview order, including the rating question.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.doc.Questions))
	for i, q := range c.doc.Questions {
		out[i] = q.clone()
	}
	return out
}

// MainQuestions returns the linear interview sequence: all questions except
// the Odyssey rating question, which is handled by the Odyssey sub-flow.
func (c *Catalog) MainQuestions() []Question {
	out := make([]Question, len(c.main))
	for i, q := range c.main {
		out[i] = q.clone()
	}
	return out
}

func (c *Catalog) MainCount() int { return len(c.main) }

// MainAt returns the main question at idx.
func (c *Catalog) MainAt(idx int) (Question, bool) {
	if idx < 0 || idx >= len(c.main) {
		return Question{}, false
	}
	return c.main[idx].clone(), true
}

// MainIndexOf returns the position of a question id in the main sequence.
func (c *Catalog) MainIndexOf(questionID int) (int, bool) {
	for i, q := range c.main {
		if q.ID == questionID {
			return i, true
		}
	}
	return 0, false
}

func (c *Catalog) Question(id int) (Question, bool) {
	i, ok := c.questionByID[id]
	if !ok {
		return Question{}, false
	}
	return c.doc.Questions[i].clone(), true
}

func (c *Catalog) Section(id int) (Section, bool) {
	i, ok := c.sectionByID[id]
	if !ok {
		return Section{}, false
	}
	return c.doc.Sections[i], true
}

func (c *Catalog) OdysseyPlansQuestion() Question {
	for _, q := range c.doc.Questions {
		if q.OdysseyPlans {
			return q.clone()
		}
	}
	return Question{}
}

func (c *Catalog) OdysseyRatingQuestion() Question {
	for _, q := range c.doc.Questions {
		if q.OdysseyRating {
			return q.clone()
		}
	}
	return Question{}
}

func (c *Catalog) Paths() []Path {
	return append([]Path(nil), c.doc.Paths...)
}

func (c *Catalog) PathIDs() []string {
	out := make([]string, len(c.doc.Paths))
	for i, p := range c.doc.Paths {
		out[i] = p.ID
	}
	return out
}

func (c *Catalog) Path(id string) (Path, bool) {
	for _, p := range c.doc.Paths {
		if p.ID == id {
			return p, true
		}
	}
	return Path{}, false
}

func (c *Catalog) Dimensions() []Dimension {
	return append([]Dimension(nil), c.doc.Dimensions...)
}

func (c *Catalog) DimensionIDs() []string {
	out := make([]string, len(c.doc.Dimensions))
	for i, d := range c.doc.Dimensions {
		out[i] = d.ID
	}
	return out
}

func (c *Catalog) HasDimension(id string) bool {
	for _, d := range c.doc.Dimensions {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (c *Catalog) CanvasBlocks() []CanvasBlock {
	return append([]CanvasBlock(nil), c.doc.Canvas...)
}

func (c *Catalog) CanvasKeys() []string {
	out := make([]string, len(c.doc.Canvas))
	for i, b := range c.doc.Canvas {
		out[i] = b.ID
	}
	return out
}

func (c *Catalog) HasCanvasKey(key string) bool {
	for _, b := range c.doc.Canvas {
		if b.ID == key {
			return true
		}
	}
	return false
}

func (c *Catalog) Voices() []Voice {
	return append([]Voice(nil), c.doc.Voices...)
}

func (c *Catalog) DefaultVoice() Voice { return c.doc.Voices[0] }

// ResolveVoice maps a stored voice id onto the catalog. Unknown or empty ids
// resolve to the default voice; ok reports whether id matched an entry.
func (c *Catalog) ResolveVoice(id string) (v Voice, ok bool) {
	if i, found := c.voiceByID[id]; found {
		return c.doc.Voices[i], true
	}
	return c.DefaultVoice(), false
}

func (c *Catalog) HasVoice(id string) bool {
	_, ok := c.voiceByID[id]
	return ok
}

func (q Question) clone() Question {
	q.Frameworks = append([]string(nil), q.Frameworks...)
	q.FollowUps = append([]string(nil), q.FollowUps...)
	return q
}
