package deck

import (
	rand "math/rand/v2"

	"github.com/tilehall/tilehall/internal/randutil"
)

// Deck represents an ordered deck of playing cards. The order is never
// exposed to clients; only Pop and Burn consume it.
type Deck struct {
	cards  []Card
	burned int
	rng    *rand.Rand
}

// New creates a shuffled 52-card deck using a crypto-seeded source.
func New() *Deck {
	return NewWithRNG(randutil.NewCrypto())
}

// NewWithRNG creates a shuffled deck using the provided source. Tests pass
// a deterministic source from randutil.New.
func NewWithRNG(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: canonical(),
		rng:   rng,
	}
	d.shuffle()
	return d
}

// NewOrdered returns the deck in canonical unshuffled order. Used by tests
// that need exact card placement.
func NewOrdered() *Deck {
	return &Deck{cards: canonical()}
}

// NewStacked builds a deck that deals the given cards in order. Test-only
// override for scenario decks; the caller is responsible for uniqueness.
func NewStacked(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

func canonical() []Card {
	cards := make([]Card, 0, 52)
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards = append(cards, NewCard(suit, rank))
		}
	}
	return cards
}

// shuffle performs an unbiased Fisher-Yates pass.
func (d *Deck) shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Pop removes and returns the top card.
func (d *Deck) Pop() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// PopN deals n cards from the top.
func (d *Deck) PopN(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	cards := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		card, ok := d.Pop()
		if !ok {
			break
		}
		cards = append(cards, card)
	}
	return cards
}

// Burn discards the top card. The count is tracked so the 52-card
// accounting invariant stays checkable.
func (d *Deck) Burn() {
	if _, ok := d.Pop(); ok {
		d.burned++
	}
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Burned returns how many cards have been burned this hand.
func (d *Deck) Burned() int {
	return d.burned
}

// Cards returns a copy of the remaining cards, top first. Used for
// persistence; never sent to clients.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Restore rebuilds a deck from persisted state.
func Restore(cards []Card, burned int) *Deck {
	d := &Deck{cards: make([]Card, len(cards)), burned: burned}
	copy(d.cards, cards)
	return d
}
