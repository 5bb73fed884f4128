package game

import "github.com/tilehall/tilehall/internal/deck"

// PlayerView is one seat as a particular viewer is allowed to see it.
// HoleCards is nil whenever the viewer may not see them.
type PlayerView struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Tiles     int         `json:"tiles"`
	Position  int         `json:"position"`
	Folded    bool        `json:"folded"`
	Spectator bool        `json:"spectator"`
	HoleCards []deck.Card `json:"holeCards,omitempty"`
}

// Snapshot is the redacted room state sent to one viewer. The deck and
// the per-street acted set never appear in any snapshot.
type Snapshot struct {
	RoomID         string       `json:"roomId"`
	Phase          string       `json:"phase"`
	Pot            int          `json:"pot"`
	Commitment     int          `json:"commitment"`
	Community      []deck.Card  `json:"community"`
	Players        []PlayerView `json:"players"`
	ActivePlayerID string       `json:"activePlayerId,omitempty"`
	DealerID       string       `json:"dealerId,omitempty"`
	History        []string     `json:"history,omitempty"`
}

// SnapshotFor builds the view of the table for the given viewer. A viewer
// id not seated at the table gets the spectator view.
func (t *Table) SnapshotFor(viewerID string) Snapshot {
	viewer, _ := t.FindPlayer(viewerID)

	s := Snapshot{
		RoomID:     t.RoomID,
		Phase:      t.Phase.String(),
		Pot:        t.Pot,
		Commitment: t.Commitment,
		Community:  append([]deck.Card(nil), t.Community...),
		Players:    make([]PlayerView, 0, len(t.Players)),
		History:    append([]string(nil), t.History...),
	}
	if p := t.ActivePlayer(); p != nil {
		s.ActivePlayerID = p.ID
	}
	if t.DealerIndex >= 0 && t.DealerIndex < len(t.Players) {
		s.DealerID = t.Players[t.DealerIndex].ID
	}

	for _, p := range t.Players {
		view := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Tiles:     p.Tiles,
			Position:  p.Position,
			Folded:    p.Folded,
			Spectator: p.Spectator,
		}
		if t.cardsVisible(viewer, p) {
			view.HoleCards = append([]deck.Card(nil), p.HoleCards...)
		}
		s.Players = append(s.Players, view)
	}
	return s
}

// cardsVisible decides whether viewer may see target's hole cards. Own
// cards are always visible to a seated, dealt-in viewer. Everyone else's
// are hidden until the reveal, when contending hands go face up.
func (t *Table) cardsVisible(viewer, target *Player) bool {
	if len(target.HoleCards) == 0 {
		return false
	}
	if viewer != nil && viewer.ID == target.ID && !viewer.Spectator {
		return true
	}
	return t.Phase == Reveal && target.InHand()
}
