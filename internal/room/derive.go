package room

import (
	"math"
	"sort"
	"strconv"
)

// Stats summarizes numeric-parseable votes for the current story.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Spread float64 `json:"spread"`
}

// Derived is the read-only computed view sent alongside raw state. It
// is never persisted.
type Derived struct {
	CurrentStory *Story `json:"currentStory"`
	// Stats is withheld while votes are still being cast so early
	// numbers cannot anchor the rest of the group.
	Stats      *Stats `json:"stats"`
	WaitingFor int    `json:"waitingFor"`
}

// Derive computes the view for a state snapshot.
func Derive(s *State) Derived {
	var current *Story
	if s.CurrentStoryID != "" {
		current = s.StoryByID(s.CurrentStoryID)
	}

	var votes []string
	if s.CurrentStoryID != "" {
		for _, v := range s.VotesByStory[s.CurrentStoryID] {
			votes = append(votes, v)
		}
	}

	var numeric []float64
	for _, v := range votes {
		// ParseFloat also accepts "Inf" and "NaN" spellings, which
		// are not estimates and cannot be JSON encoded.
		if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			numeric = append(numeric, n)
		}
	}

	var stats *Stats
	if s.Phase != PhaseVoting && len(numeric) > 0 {
		sort.Float64s(numeric)
		stats = &Stats{
			Min:    numeric[0],
			Max:    numeric[len(numeric)-1],
			Median: median(numeric),
			Spread: numeric[len(numeric)-1] - numeric[0],
		}
	}

	waiting := len(s.Participants) - len(votes)
	if waiting < 0 {
		waiting = 0
	}

	return Derived{CurrentStory: current, Stats: stats, WaitingFor: waiting}
}

// median expects a sorted slice.
func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// DeckValues returns the vote values a deck permits.
func DeckValues(d Deck) []string {
	switch d.Type {
	case DeckFibonacci:
		return []string{"0", "1", "2", "3", "5", "8", "13", "21", "?", "☕"}
	case DeckTShirt:
		return []string{"XS", "S", "M", "L", "XL", "XXL", "?", "☕"}
	case DeckCustom:
		return d.Custom
	default:
		return nil
	}
}
