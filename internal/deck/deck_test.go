package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilehall/tilehall/internal/randutil"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	d := NewWithRNG(randutil.New(1))
	require.Equal(t, 52, d.Remaining())

	seen := make(map[Card]bool)
	for {
		card, ok := d.Pop()
		if !ok {
			break
		}
		assert.False(t, seen[card], "duplicate card %s", card)
		seen[card] = true
	}
	assert.Len(t, seen, 52)
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := NewWithRNG(randutil.New(42))
	b := NewWithRNG(randutil.New(42))
	assert.Equal(t, a.Cards(), b.Cards())

	c := NewWithRNG(randutil.New(43))
	assert.NotEqual(t, a.Cards(), c.Cards())
}

func TestBurnTracksCount(t *testing.T) {
	d := NewWithRNG(randutil.New(7))
	d.Burn()
	d.PopN(3)
	d.Burn()

	assert.Equal(t, 2, d.Burned())
	assert.Equal(t, 47, d.Remaining())
	assert.Equal(t, 52, d.Remaining()+d.Burned()+3) // 3 dealt
}

func TestStackedDeckDealsInOrder(t *testing.T) {
	want := []Card{
		NewCard(Spades, Ace),
		NewCard(Hearts, Ace),
		NewCard(Clubs, Two),
	}
	d := NewStacked(want...)

	for _, w := range want {
		card, ok := d.Pop()
		require.True(t, ok)
		assert.Equal(t, w, card)
	}
	_, ok := d.Pop()
	assert.False(t, ok)
}

func TestCardString(t *testing.T) {
	assert.Equal(t, "A♠", NewCard(Spades, Ace).String())
	assert.Equal(t, "T♦", NewCard(Diamonds, Ten).String())
	assert.Equal(t, "2♣", NewCard(Clubs, Two).String())
}
