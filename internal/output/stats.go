package output

import "sort"

// HighConfidence is the confidence at or above which an entry counts as
// high confidence in Stats.
const HighConfidence = 0.9

// Stats summarizes an offsets file.
type Stats struct {
	Functions  int
	Classes    int
	Structures int
	Members    int
	Constants  int
	Unresolved int

	// ByMethod counts functions, members and constants per method name.
	ByMethod map[string]int
	// High counts entries at or above HighConfidence.
	High int
	// Categories counts functions and constants per category.
	Categories map[string]int
}

// Total is the number of resolved entries of every kind.
func (s Stats) Total() int {
	return s.Functions + s.Classes + s.Members + s.Constants
}

// Methods returns the method names present, sorted.
func (s Stats) Methods() []string {
	return keys(s.ByMethod)
}

// CategoryNames returns the categories present, sorted.
func (s Stats) CategoryNames() []string {
	return keys(s.Categories)
}

// Summarize counts the entries of f.
func Summarize(f *File) Stats {
	s := Stats{
		Functions:  len(f.Functions),
		Classes:    len(f.Classes),
		Structures: len(f.Structures),
		Constants:  len(f.Constants),
		Unresolved: len(f.Unresolved),
		ByMethod:   make(map[string]int),
		Categories: make(map[string]int),
	}
	count := func(method, category string, conf float64) {
		s.ByMethod[method]++
		if category != "" {
			s.Categories[category]++
		}
		if conf >= HighConfidence {
			s.High++
		}
	}
	for _, fn := range f.Functions {
		count(fn.Method, fn.Category, fn.Confidence)
	}
	for _, members := range f.Structures {
		for _, m := range members {
			s.Members++
			count(m.Method, "", m.Confidence)
		}
	}
	for _, c := range f.Constants {
		count(c.Method, c.Category, c.Confidence)
	}
	return s
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
