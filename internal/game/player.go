package game

import "github.com/tilehall/tilehall/internal/deck"

// Player is one seat in a room. Position is assigned at join and never
// renumbered when other players leave.
type Player struct {
	ID        string
	Name      string
	Tiles     int
	HoleCards []deck.Card
	Folded    bool
	Spectator bool
	Position  int
}

// Eligible reports whether the player can be dealt into a new hand.
func (p *Player) Eligible() bool {
	return !p.Spectator && p.Tiles > 0
}

// DealtIn reports whether the player holds cards in the current hand.
func (p *Player) DealtIn() bool {
	return !p.Spectator && len(p.HoleCards) == 2
}

// InHand reports whether the player is still contending for the pot.
func (p *Player) InHand() bool {
	return p.DealtIn() && !p.Folded
}

// CanAct reports whether the player may take a turn: contending and not
// all-in.
func (p *Player) CanAct() bool {
	return p.InHand() && p.Tiles > 0
}
