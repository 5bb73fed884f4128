// Package evaluator scores 5..7 card hold'em hands into a totally ordered
// key: a category plus a canonical tie-breaker tuple. Two results compare
// lexicographically on (category, tuple); equal keys mean a split pot.
package evaluator

import (
	"sort"

	"github.com/tilehall/tilehall/internal/deck"
)

// Category enumerates hand categories from weakest to strongest.
type Category int

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case OnePair:
		return "One Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandResult is the comparable evaluation of a hand.
type HandResult struct {
	Category  Category `json:"category"`
	Tiebreaks []int    `json:"tiebreaks"`
}

// Compare returns 1 if a beats b, -1 if b beats a, 0 on an exact tie.
func Compare(a, b HandResult) int {
	if a.Category != b.Category {
		if a.Category > b.Category {
			return 1
		}
		return -1
	}
	n := len(a.Tiebreaks)
	if len(b.Tiebreaks) < n {
		n = len(b.Tiebreaks)
	}
	for i := 0; i < n; i++ {
		if a.Tiebreaks[i] != b.Tiebreaks[i] {
			if a.Tiebreaks[i] > b.Tiebreaks[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Evaluate scores the best 5-card hand selectable from the given 2..7 cards.
func Evaluate(cards []deck.Card) HandResult {
	values := make([]int, len(cards))
	suits := make(map[deck.Suit][]int, 4)
	counts := make(map[int]int, len(cards))
	for i, c := range cards {
		v := c.Value()
		values[i] = v
		suits[c.Suit] = append(suits[c.Suit], v)
		counts[v]++
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))

	// At most one suit can hold five of seven cards.
	var flushValues []int
	for _, bucket := range suits {
		if len(bucket) >= 5 {
			flushValues = append([]int(nil), bucket...)
			sort.Sort(sort.Reverse(sort.IntSlice(flushValues)))
			break
		}
	}

	var quads, trips, pairs []int
	for v, n := range counts {
		switch n {
		case 4:
			quads = append(quads, v)
		case 3:
			trips = append(trips, v)
		case 2:
			pairs = append(pairs, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(quads)))
	sort.Sort(sort.Reverse(sort.IntSlice(trips)))
	sort.Sort(sort.Reverse(sort.IntSlice(pairs)))

	// Straight flush and royal flush are detected on the flush-suit subset
	// only; a straight spread over mixed suits does not qualify.
	if flushValues != nil {
		if high := straightHigh(flushValues); high > 0 {
			if high == int(deck.Ace) {
				return HandResult{Category: RoyalFlush, Tiebreaks: []int{high}}
			}
			return HandResult{Category: StraightFlush, Tiebreaks: []int{high}}
		}
	}

	if len(quads) > 0 {
		quad := quads[0]
		kickers := topExcluding(values, 1, quad)
		return HandResult{Category: FourOfAKind, Tiebreaks: append([]int{quad}, kickers...)}
	}

	if len(trips) > 0 {
		over := trips[0]
		under := 0
		if len(trips) > 1 {
			under = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > under {
			under = pairs[0]
		}
		if under > 0 {
			return HandResult{Category: FullHouse, Tiebreaks: []int{over, under}}
		}
	}

	if flushValues != nil {
		return HandResult{Category: Flush, Tiebreaks: topN(flushValues, 5)}
	}

	if high := straightHigh(values); high > 0 {
		return HandResult{Category: Straight, Tiebreaks: []int{high}}
	}

	if len(trips) > 0 {
		kickers := topExcluding(values, 2, trips[0])
		return HandResult{Category: ThreeOfAKind, Tiebreaks: append([]int{trips[0]}, kickers...)}
	}

	if len(pairs) >= 2 {
		high, low := pairs[0], pairs[1]
		kickers := topExcluding(values, 1, high, low)
		return HandResult{Category: TwoPair, Tiebreaks: append([]int{high, low}, kickers...)}
	}

	if len(pairs) == 1 {
		kickers := topExcluding(values, 3, pairs[0])
		return HandResult{Category: OnePair, Tiebreaks: append([]int{pairs[0]}, kickers...)}
	}

	return HandResult{Category: HighCard, Tiebreaks: topN(values, 5)}
}

// straightHigh returns the top card of the best straight in the given
// descending values, or 0 if none. The wheel (A-5-4-3-2) reports 5.
func straightHigh(sortedDesc []int) int {
	unique := make([]int, 0, len(sortedDesc))
	last := 0
	for _, v := range sortedDesc {
		if v != last {
			unique = append(unique, v)
			last = v
		}
	}

	for i := 0; i+5 <= len(unique); i++ {
		if unique[i]-unique[i+4] == 4 {
			return unique[i]
		}
	}

	// Wheel: ace counts as 1 below the deuce.
	if contains(unique, int(deck.Ace)) &&
		contains(unique, 5) && contains(unique, 4) &&
		contains(unique, 3) && contains(unique, 2) {
		return 5
	}
	return 0
}

func contains(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// topN returns the first n values (fewer if not available).
func topN(sortedDesc []int, n int) []int {
	if n > len(sortedDesc) {
		n = len(sortedDesc)
	}
	out := make([]int, n)
	copy(out, sortedDesc[:n])
	return out
}

// topExcluding returns the top n values skipping every occurrence of the
// excluded ranks.
func topExcluding(sortedDesc []int, n int, exclude ...int) []int {
	out := make([]int, 0, n)
	for _, v := range sortedDesc {
		if contains(exclude, v) {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}
