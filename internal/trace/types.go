// Package trace records resolution events produced while a batch runs.
package trace

import (
	"sort"
	"sync"
	"time"
)

// Tag represents an event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Strategy tags.
const (
	Symbol    Tag = "symbol"
	Pattern   Tag = "pattern"
	XRef      Tag = "xref"
	Heuristic Tag = "heuristic"
	Class     Tag = "class"
	Field     Tag = "field"
	Constant  Tag = "constant"
)

// Outcome tags.
const (
	Resolved     Tag = "resolved"
	Rejected     Tag = "rejected"
	Miss         Tag = "miss"
	Dropped      Tag = "dropped"
	Corroborated Tag = "corroborated"
	Ambiguous    Tag = "ambiguous"
	Unreadable   Tag = "unreadable"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for events.
type Annotations map[string]string

// Event is one strategy attempt or validation decision for a target.
type Event struct {
	Addr        uint64 // candidate or resolved address, 0 if none
	Tags        Tags   // first is the strategy
	Target      string
	Detail      string // e.g. the pattern text or string literal tried
	Annotations Annotations
	Timestamp   time.Time
}

// NewEvent creates an event tagged with the strategy that produced it.
func NewEvent(addr uint64, strategy, target, detail string) *Event {
	return &Event{
		Addr:      addr,
		Tags:      Tags{Tag(strategy)},
		Target:    target,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations[k] = v
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Recorder collects events from concurrent workers.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
	byTag  map[Tag]int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{byTag: make(map[Tag]int)}
}

// Record stores e.
func (r *Recorder) Record(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	for _, t := range e.Tags {
		r.byTag[t]++
	}
}

// Events returns recorded events ordered by target then time.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	out := append([]*Event(nil), r.events...)
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// For returns the events recorded for one target.
func (r *Recorder) For(target string) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events carry tag.
func (r *Recorder) Count(tag Tag) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTag[tag]
}
