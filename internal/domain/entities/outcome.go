package entities

import "strings"

const (
	// NoRelevantResults is the retrieval result when chunks were found but
	// none survived the map stage and the filename fallback.
	NoRelevantResults = "Search returned results but none were relevant to the query."
	// NoMatchingContent is the retrieval result when nothing was found at all.
	NoMatchingContent = "No matching content found."
)

// RetrievalOutcome holds facts grouped by source file, in the order sources
// were first seen. A zero value is the "no relevant results" outcome.
type RetrievalOutcome struct {
	order []string
	facts map[string][]string

	// Evidence is the text of the best-scoring chunk that yielded facts.
	Evidence string
	// Searched reports whether the index returned any chunk.
	Searched bool
	// FallbackFiles is the number of files read by the filename fallback.
	FallbackFiles int
	// FromFallback reports whether the facts came from the filename fallback.
	FromFallback bool
}

// Add appends facts for source. Empty fact lists are ignored.
func (o *RetrievalOutcome) Add(source string, facts ...string) {
	if len(facts) == 0 {
		return
	}
	if o.facts == nil {
		o.facts = make(map[string][]string)
	}
	if _, seen := o.facts[source]; !seen {
		o.order = append(o.order, source)
	}
	o.facts[source] = append(o.facts[source], facts...)
}

// Empty reports whether no facts were collected.
func (o *RetrievalOutcome) Empty() bool {
	return len(o.order) == 0
}

// Sources returns the source names in first-seen order.
func (o *RetrievalOutcome) Sources() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Facts returns the facts recorded for source.
func (o *RetrievalOutcome) Facts(source string) []string {
	return o.facts[source]
}

// FactCount returns the number of facts across all sources.
func (o *RetrievalOutcome) FactCount() int {
	n := 0
	for _, f := range o.facts {
		n += len(f)
	}
	return n
}

// String renders the outcome as tool result text.
func (o *RetrievalOutcome) String() string {
	if o.Empty() {
		if o.Searched || o.FallbackFiles > 0 {
			return NoRelevantResults
		}
		return NoMatchingContent
	}
	var sb strings.Builder
	for i, source := range o.order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("From ")
		sb.WriteString(source)
		sb.WriteString(":")
		for _, fact := range o.facts[source] {
			sb.WriteString("\n  - ")
			sb.WriteString(fact)
		}
	}
	return sb.String()
}
