package interview

import (
	"strings"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
)

type Phase string

const (
	PhasePathEntry  Phase = "path_entry"
	PhasePathRating Phase = "path_rating"
	PhaseDone       Phase = "done"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Odyssey walks the three paths in order. Each path collects a description
// and then four dimension scores. It is not safe for concurrent use; Flow
// serializes access.
type Odyssey struct {
	cat     *catalog.Catalog
	paths   []catalog.Path
	dims    []string
	index   int
	phase   Phase
	texts   types.OdysseyPaths
	ratings types.OdysseyRatings
}

type OdysseySnapshot struct {
	PathID    string               `json:"path_id,omitempty"`
	PathIndex int                  `json:"path_index"`
	Phase     Phase                `json:"phase"`
	Prompt    string               `json:"prompt,omitempty"`
	Scores    map[string]int       `json:"scores,omitempty"`
	AllRated  bool                 `json:"all_rated"`
	Paths     types.OdysseyPaths   `json:"paths"`
	Ratings   types.OdysseyRatings `json:"ratings"`
	Done      bool                 `json:"done"`
}

func NewOdyssey(cat *catalog.Catalog) *Odyssey {
	return &Odyssey{
		cat:     cat,
		paths:   cat.Paths(),
		dims:    cat.DimensionIDs(),
		phase:   PhasePathEntry,
		texts:   types.OdysseyPaths{},
		ratings: types.OdysseyRatings{},
	}
}

// RestoreOdyssey positions the sub-flow from persisted paths and ratings:
// the first path missing a description, else the first path not fully
// rated, else done.
func RestoreOdyssey(cat *catalog.Catalog, texts types.OdysseyPaths, ratings types.OdysseyRatings) *Odyssey {
	o := NewOdyssey(cat)
	for id, text := range texts {
		if _, ok := cat.Path(id); ok && strings.TrimSpace(text) != "" {
			o.texts[id] = text
		}
	}
	for id, scores := range ratings {
		if _, ok := cat.Path(id); !ok {
			continue
		}
		clean := map[string]int{}
		for dim, v := range scores {
			if cat.HasDimension(dim) && v >= MinRating && v <= MaxRating {
				clean[dim] = v
			}
		}
		o.ratings[id] = clean
	}
	for i, p := range o.paths {
		if o.texts[p.ID] == "" {
			o.index, o.phase = i, PhasePathEntry
			return o
		}
		if !AllRated(o.ratings[p.ID], o.dims) {
			o.index, o.phase = i, PhasePathRating
			return o
		}
	}
	o.index, o.phase = len(o.paths)-1, PhaseDone
	return o
}

// AllRated reports whether every dimension has a score in 1..5.
func AllRated(scores map[string]int, dims []string) bool {
	if len(dims) == 0 {
		return false
	}
	for _, d := range dims {
		v := scores[d]
		if v < MinRating || v > MaxRating {
			return false
		}
	}
	return true
}

func (o *Odyssey) Phase() Phase { return o.phase }

func (o *Odyssey) Done() bool { return o.phase == PhaseDone }

func (o *Odyssey) current() catalog.Path { return o.paths[o.index] }

// SubmitPath records the description for the current path and moves to rating.
func (o *Odyssey) SubmitPath(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyAnswer
	}
	if o.phase != PhasePathEntry {
		return ErrWrongPhase
	}
	o.texts[o.current().ID] = text
	o.phase = PhasePathRating
	return nil
}

// Rate sets one dimension score for the current path.
func (o *Odyssey) Rate(dimension string, value int) error {
	if o.phase != PhasePathRating {
		return ErrWrongPhase
	}
	if !o.cat.HasDimension(dimension) {
		return ErrUnknownDimension
	}
	if value < MinRating || value > MaxRating {
		return ErrInvalidRating
	}
	id := o.current().ID
	if o.ratings[id] == nil {
		o.ratings[id] = map[string]int{}
	}
	o.ratings[id][dimension] = value
	return nil
}

func (o *Odyssey) CurrentAllRated() bool {
	if o.phase != PhasePathRating {
		return false
	}
	return AllRated(o.ratings[o.current().ID], o.dims)
}

// CompleteRatings closes the current path. last is true when it was the final path.
func (o *Odyssey) CompleteRatings() (last bool, err error) {
	if o.phase != PhasePathRating {
		return false, ErrWrongPhase
	}
	if !o.CurrentAllRated() {
		return false, ErrNotAllRated
	}
	if o.index < len(o.paths)-1 {
		o.index++
		o.phase = PhasePathEntry
		return false, nil
	}
	o.phase = PhaseDone
	return true, nil
}

// reopenLast undoes the final CompleteRatings so it can be retried.
func (o *Odyssey) reopenLast() {
	o.index = len(o.paths) - 1
	o.phase = PhasePathRating
}

// Prompt is the line to speak for the current phase.
func (o *Odyssey) Prompt() string {
	switch o.phase {
	case PhasePathEntry:
		return o.current().Prompt
	case PhasePathRating:
		return o.current().RatingIntro
	default:
		return ""
	}
}

func (o *Odyssey) Texts() types.OdysseyPaths {
	out := make(types.OdysseyPaths, len(o.texts))
	for k, v := range o.texts {
		out[k] = v
	}
	return out
}

func (o *Odyssey) Ratings() types.OdysseyRatings {
	out := make(types.OdysseyRatings, len(o.ratings))
	for k, scores := range o.ratings {
		cp := make(map[string]int, len(scores))
		for d, v := range scores {
			cp[d] = v
		}
		out[k] = cp
	}
	return out
}

func (o *Odyssey) Snapshot() OdysseySnapshot {
	snap := OdysseySnapshot{
		PathIndex: o.index,
		Phase:     o.phase,
		Prompt:    o.Prompt(),
		Paths:     o.Texts(),
		Ratings:   o.Ratings(),
		Done:      o.Done(),
	}
	if !o.Done() {
		p := o.current()
		snap.PathID = p.ID
		snap.Scores = snap.Ratings[p.ID]
		snap.AllRated = o.CurrentAllRated()
	}
	return snap
}
