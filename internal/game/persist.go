package game

import (
	"encoding/json"
	"fmt"

	"github.com/tilehall/tilehall/internal/deck"
)

// persistedPlayer is the storage form of a seat. Unlike snapshots, the
// persisted record keeps everything, hole cards included.
type persistedPlayer struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Tiles     int         `json:"tiles"`
	HoleCards []deck.Card `json:"holeCards,omitempty"`
	Folded    bool        `json:"folded"`
	Spectator bool        `json:"spectator"`
	Position  int         `json:"position"`
}

type persistedTable struct {
	RoomID      string            `json:"roomId"`
	Rules       Rules             `json:"rules"`
	Players     []persistedPlayer `json:"players"`
	DeckCards   []deck.Card       `json:"deckCards,omitempty"`
	DeckBurned  int               `json:"deckBurned"`
	Community   []deck.Card       `json:"community,omitempty"`
	Pot         int               `json:"pot"`
	Commitment  int               `json:"commitment"`
	RoundBets   map[string]int    `json:"roundBets,omitempty"`
	Acted       map[string]bool   `json:"acted,omitempty"`
	ActiveIndex int               `json:"activeIndex"`
	DealerIndex int               `json:"dealerIndex"`
	Phase       Phase             `json:"phase"`
	History     []string          `json:"history,omitempty"`
	TurnSeq     uint64            `json:"turnSeq"`
	NextPos     int               `json:"nextPos"`
}

// Marshal serializes the full table state for the store. The result is
// never sent to clients.
func (t *Table) Marshal() ([]byte, error) {
	pt := persistedTable{
		RoomID:      t.RoomID,
		Rules:       t.Rules,
		Community:   t.Community,
		Pot:         t.Pot,
		Commitment:  t.Commitment,
		RoundBets:   t.RoundBets,
		Acted:       t.Acted,
		ActiveIndex: t.ActiveIndex,
		DealerIndex: t.DealerIndex,
		Phase:       t.Phase,
		History:     t.History,
		TurnSeq:     t.TurnSeq,
		NextPos:     t.nextPos,
	}
	if t.Deck != nil {
		pt.DeckCards = t.Deck.Cards()
		pt.DeckBurned = t.Deck.Burned()
	}
	for _, p := range t.Players {
		pt.Players = append(pt.Players, persistedPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Tiles:     p.Tiles,
			HoleCards: p.HoleCards,
			Folded:    p.Folded,
			Spectator: p.Spectator,
			Position:  p.Position,
		})
	}
	return json.Marshal(pt)
}

// Unmarshal rebuilds a table from a persisted record.
func Unmarshal(data []byte, opts ...Option) (*Table, error) {
	var pt persistedTable
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, fmt.Errorf("decode table state: %w", err)
	}

	t := NewTable(pt.RoomID, pt.Rules, opts...)
	t.Community = pt.Community
	t.Pot = pt.Pot
	t.Commitment = pt.Commitment
	t.ActiveIndex = pt.ActiveIndex
	t.DealerIndex = pt.DealerIndex
	t.Phase = pt.Phase
	t.History = pt.History
	t.TurnSeq = pt.TurnSeq
	t.nextPos = pt.NextPos
	if pt.RoundBets != nil {
		t.RoundBets = pt.RoundBets
	}
	if pt.Acted != nil {
		t.Acted = pt.Acted
	}
	if pt.DeckCards != nil {
		t.Deck = deck.Restore(pt.DeckCards, pt.DeckBurned)
	}
	for _, pp := range pt.Players {
		t.Players = append(t.Players, &Player{
			ID:        pp.ID,
			Name:      pp.Name,
			Tiles:     pp.Tiles,
			HoleCards: pp.HoleCards,
			Folded:    pp.Folded,
			Spectator: pp.Spectator,
			Position:  pp.Position,
		})
	}
	return t, nil
}
