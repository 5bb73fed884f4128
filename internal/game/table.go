// Package game implements the per-room hold'em state machine. Transitions
// mutate the table and return effects (timer arm/disarm, cleanup
// scheduling); all I/O happens outside, in the room actor. The machine is
// therefore pure enough to drive directly from tests.
package game

import (
	"errors"
	"fmt"

	"github.com/tilehall/tilehall/internal/deck"
	"github.com/tilehall/tilehall/internal/evaluator"
)

var (
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrWrongPhase        = errors.New("not legal in this phase")
	ErrNeedMorePlayers   = errors.New("need at least two seated players")
	ErrCheckFacingBet    = errors.New("cannot check facing a bet")
	ErrInsufficientTiles = errors.New("amount exceeds tile balance")
	ErrZeroCommit        = errors.New("commit amount must be positive")
)

// Rules holds the table stakes.
type Rules struct {
	SmallBlind    int
	BigBlind      int
	StartingTiles int
}

// DefaultRules mirrors the server defaults.
func DefaultRules() Rules {
	return Rules{SmallBlind: 10, BigBlind: 20, StartingTiles: 1000}
}

// Table is the authoritative context for one room.
type Table struct {
	RoomID      string
	Rules       Rules
	Players     []*Player
	Deck        *deck.Deck
	Community   []deck.Card
	Pot         int
	Commitment  int            // highest per-player contribution required this street
	RoundBets   map[string]int // player id -> chips contributed this street
	Acted       map[string]bool
	ActiveIndex int
	DealerIndex int
	Phase       Phase
	History     []string
	TurnSeq     uint64

	newDeck func() *deck.Deck
	nextPos int
}

// Option configures a Table.
type Option func(*Table)

// WithDeckFactory overrides how fresh decks are produced. Tests use this
// to stack known cards.
func WithDeckFactory(f func() *deck.Deck) Option {
	return func(t *Table) { t.newDeck = f }
}

// NewTable creates an empty table in the lobby phase.
func NewTable(roomID string, rules Rules, opts ...Option) *Table {
	t := &Table{
		RoomID:      roomID,
		Rules:       rules,
		RoundBets:   make(map[string]int),
		Acted:       make(map[string]bool),
		ActiveIndex: -1,
		Phase:       Lobby,
		newDeck:     deck.New,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FindPlayer returns the player with the given id, if seated.
func (t *Table) FindPlayer(id string) (*Player, int) {
	for i, p := range t.Players {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

// Join seats a new player or rehydrates an existing one. A player joining
// mid-hand waits for the next deal.
func (t *Table) Join(id, name string) *Player {
	if p, _ := t.FindPlayer(id); p != nil {
		return p
	}
	p := &Player{
		ID:       id,
		Name:     name,
		Tiles:    t.Rules.StartingTiles,
		Position: t.nextPos,
	}
	t.nextPos++
	t.Players = append(t.Players, p)
	t.log("%s joined with %d tiles", name, p.Tiles)
	return p
}

// Start begins a hand from the lobby. Any seated player may start.
func (t *Table) Start(playerID string) ([]Effect, error) {
	if t.Phase != Lobby {
		return nil, ErrWrongPhase
	}
	if p, _ := t.FindPlayer(playerID); p == nil {
		return nil, ErrUnknownPlayer
	}
	if t.countEligible() < 2 {
		return nil, ErrNeedMorePlayers
	}
	return t.deal(), nil
}

// deal runs the DEALING entry actions: shuffle, hole cards, blinds, first
// to act. It always lands in PRE_FLOP.
func (t *Table) deal() []Effect {
	t.Phase = Dealing
	t.Deck = t.newDeck()
	t.Community = nil
	t.Pot = 0
	t.Commitment = 0
	t.RoundBets = make(map[string]int)
	t.Acted = make(map[string]bool)
	t.log("hand started, dealer is %s", t.Players[t.DealerIndex].Name)

	for _, p := range t.Players {
		p.Folded = false
		if p.Eligible() {
			p.HoleCards = t.Deck.PopN(2)
		} else {
			p.HoleCards = nil
		}
	}

	// Heads-up: the dealer posts the small blind and acts first pre-flop.
	var sbIdx, bbIdx int
	if t.countEligible() == 2 && t.Players[t.DealerIndex].Eligible() {
		sbIdx = t.DealerIndex
		bbIdx = t.nextEligible(sbIdx)
	} else {
		sbIdx = t.nextEligible(t.DealerIndex)
		bbIdx = t.nextEligible(sbIdx)
	}
	t.postBlind(t.Players[sbIdx], t.Rules.SmallBlind, "small blind")
	t.postBlind(t.Players[bbIdx], t.Rules.BigBlind, "big blind")

	t.Phase = PreFlop
	t.ActiveIndex = t.nextPlayer(bbIdx)
	if t.ActiveIndex < 0 {
		// Blinds put everyone all-in; run the board out.
		return t.runOutBoard()
	}
	if t.countCanAct() < 2 && t.RoundBets[t.ActivePlayer().ID] == t.Commitment {
		// The one player who could bet has nobody left to bet against.
		return t.runOutBoard()
	}
	return []Effect{t.armTurn()}
}

// postBlind commits a forced bet. Blinds are not voluntary actions: the
// poster stays out of the acted set so the big blind keeps its option.
func (t *Table) postBlind(p *Player, amount int, label string) {
	amt := min(amount, p.Tiles)
	p.Tiles -= amt
	t.RoundBets[p.ID] += amt
	t.Pot += amt
	if t.RoundBets[p.ID] > t.Commitment {
		t.Commitment = t.RoundBets[p.ID]
	}
	t.log("%s posts %s %d", p.Name, label, amt)
}

// ApplyIntent validates and applies a player's intent. Illegal intents
// leave the table untouched and return a typed error for the gateway.
func (t *Table) ApplyIntent(playerID string, kind IntentKind, amount int) ([]Effect, error) {
	if !t.Phase.Betting() {
		return nil, ErrWrongPhase
	}
	p, idx := t.FindPlayer(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if idx != t.ActiveIndex {
		return nil, ErrNotYourTurn
	}

	if kind == Pass {
		if t.RoundBets[p.ID] == t.Commitment {
			kind = Check
		} else {
			kind = Fold
		}
	}

	switch kind {
	case Check:
		if t.RoundBets[p.ID] != t.Commitment {
			return nil, ErrCheckFacingBet
		}
		t.Acted[p.ID] = true
		t.log("%s checks", p.Name)

	case Fold:
		p.Folded = true
		t.Acted[p.ID] = true
		t.log("%s folds", p.Name)

	case Commit:
		if amount <= 0 {
			return nil, ErrZeroCommit
		}
		if amount > p.Tiles {
			return nil, ErrInsufficientTiles
		}
		p.Tiles -= amount
		t.RoundBets[p.ID] += amount
		t.Pot += amount
		if total := t.RoundBets[p.ID]; total > t.Commitment {
			// Raise: everyone who already matched must act again.
			t.Commitment = total
			t.Acted = map[string]bool{p.ID: true}
			t.log("%s raises to %d", p.Name, total)
		} else {
			t.Acted[p.ID] = true
			t.log("%s commits %d", p.Name, amount)
		}

	default:
		return nil, fmt.Errorf("unsupported intent %v", kind)
	}

	return t.advanceTurn(), nil
}

// ExpireTurn force-folds the active player when the inactivity timer
// fires. Stale timers (seq mismatch) are ignored.
func (t *Table) ExpireTurn(seq uint64) []Effect {
	if !t.Phase.Betting() || seq != t.TurnSeq || t.ActiveIndex < 0 {
		return nil
	}
	p := t.Players[t.ActiveIndex]
	p.Folded = true
	t.Acted[p.ID] = true
	t.log("%s folds (turn timeout)", p.Name)
	return t.advanceTurn()
}

// advanceTurn picks the next actor or moves the hand forward after any
// applied action.
func (t *Table) advanceTurn() []Effect {
	if t.countInHand() <= 1 {
		return t.revealUncontested()
	}
	if t.roundComplete() {
		return t.advanceStreet()
	}
	t.ActiveIndex = t.nextPlayer(t.ActiveIndex)
	if t.ActiveIndex < 0 {
		// Everyone left contending is all-in.
		return t.runOutBoard()
	}
	return []Effect{t.armTurn()}
}

// roundComplete implements the betting-round completion rule: every
// contending player has matched the commitment or is all-in, and every
// player who can still act has acted since the last aggression.
func (t *Table) roundComplete() bool {
	for _, p := range t.Players {
		if !p.InHand() {
			continue
		}
		if p.Tiles == 0 {
			continue // all-in players owe nothing further
		}
		if t.RoundBets[p.ID] != t.Commitment {
			return false
		}
		if !t.Acted[p.ID] {
			return false
		}
	}
	return true
}

// advanceStreet resets per-street betting and deals the next community
// cards. When no one can act (all-ins) it keeps advancing to REVEAL.
func (t *Table) advanceStreet() []Effect {
	t.RoundBets = make(map[string]int)
	t.Acted = make(map[string]bool)
	t.Commitment = 0

	switch t.Phase {
	case PreFlop:
		t.Phase = Flop
		t.Deck.Burn()
		t.Community = append(t.Community, t.Deck.PopN(3)...)
		t.log("flop: %v", t.Community)
	case Flop:
		t.Phase = Turn
		t.Deck.Burn()
		t.Community = append(t.Community, t.Deck.PopN(1)...)
		t.log("turn: %v", t.Community[3])
	case Turn:
		t.Phase = River
		t.Deck.Burn()
		t.Community = append(t.Community, t.Deck.PopN(1)...)
		t.log("river: %v", t.Community[4])
	case River:
		return t.showdown()
	default:
		return nil
	}

	// With fewer than two players able to act there is no betting on this
	// street; keep dealing toward the showdown.
	if t.countCanAct() < 2 {
		t.ActiveIndex = -1
		return t.advanceStreet()
	}
	t.ActiveIndex = t.nextPlayer(t.DealerIndex)
	return []Effect{t.armTurn()}
}

// runOutBoard deals the remaining streets without betting.
func (t *Table) runOutBoard() []Effect {
	t.ActiveIndex = -1
	return t.advanceStreet()
}

// revealUncontested awards the pot to the last contender without
// evaluating hands.
func (t *Table) revealUncontested() []Effect {
	t.Phase = Reveal
	t.ActiveIndex = -1
	for _, p := range t.Players {
		if p.InHand() {
			p.Tiles += t.Pot
			t.log("%s wins %d uncontested", p.Name, t.Pot)
			break
		}
	}
	t.Pot = 0
	return []Effect{{Kind: DisarmTurnTimer}, {Kind: ScheduleCleanup}}
}

// showdown evaluates every contending hand and splits the pot among the
// best. The odd chip goes to the winner seated first after the dealer.
func (t *Table) showdown() []Effect {
	t.Phase = Reveal
	t.ActiveIndex = -1

	var best evaluator.HandResult
	var winners []int
	for _, idx := range t.seatsAfterDealer() {
		p := t.Players[idx]
		if !p.InHand() {
			continue
		}
		result := evaluator.Evaluate(append(append([]deck.Card{}, p.HoleCards...), t.Community...))
		t.log("%s shows %v (%s)", p.Name, p.HoleCards, result.Category)
		switch cmp := evaluator.Compare(result, best); {
		case len(winners) == 0 || cmp > 0:
			best = result
			winners = []int{idx}
		case cmp == 0:
			winners = append(winners, idx)
		}
	}

	if len(winners) > 0 {
		share := t.Pot / len(winners)
		odd := t.Pot % len(winners)
		for i, idx := range winners {
			amount := share
			if i == 0 {
				amount += odd
			}
			t.Players[idx].Tiles += amount
			t.log("%s wins %d with %s", t.Players[idx].Name, amount, best.Category)
		}
	}
	t.Pot = 0
	return []Effect{{Kind: DisarmTurnTimer}, {Kind: ScheduleCleanup}}
}

// FinishReveal runs the CLEANUP actions after the reveal delay and
// returns the room to the lobby for the next START.
func (t *Table) FinishReveal() []Effect {
	if t.Phase != Reveal {
		return nil
	}
	t.Phase = Cleanup
	for _, p := range t.Players {
		p.HoleCards = nil
		p.Folded = false
		if p.Tiles == 0 && !p.Spectator {
			p.Spectator = true
			t.log("%s is out of tiles and becomes a spectator", p.Name)
		}
	}
	t.Community = nil
	t.Deck = nil
	t.Pot = 0
	t.Commitment = 0
	t.RoundBets = make(map[string]int)
	t.Acted = make(map[string]bool)
	t.ActiveIndex = -1
	t.rotateDealer()
	t.Phase = Lobby
	return nil
}

// Leave retires a player. During a betting street their action is a
// forced fold and any remaining tiles are forfeited to the pot; otherwise
// they simply take their tiles and go.
func (t *Table) Leave(playerID string) ([]Effect, error) {
	p, idx := t.FindPlayer(playerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}

	var effects []Effect
	if p.InHand() && t.Phase.Betting() {
		wasActive := idx == t.ActiveIndex
		p.Folded = true
		t.Acted[p.ID] = true
		t.Pot += p.Tiles
		t.log("%s leaves, forfeiting %d tiles to the pot", p.Name, p.Tiles)
		p.Tiles = 0
		switch {
		case wasActive:
			effects = t.advanceTurn()
		case t.countInHand() <= 1:
			effects = t.revealUncontested()
		case t.roundComplete():
			// The fold was the last action the street was waiting on.
			effects = t.advanceStreet()
		}
	} else {
		t.log("%s leaves", p.Name)
	}

	t.removeSeat(playerID)
	return effects, nil
}

// removeSeat drops the player from the seating order, fixing up the
// dealer and active indices.
func (t *Table) removeSeat(playerID string) {
	_, idx := t.FindPlayer(playerID)
	if idx < 0 {
		return
	}
	t.Players = append(t.Players[:idx], t.Players[idx+1:]...)
	delete(t.RoundBets, playerID)
	delete(t.Acted, playerID)
	if len(t.Players) == 0 {
		t.DealerIndex = 0
		t.ActiveIndex = -1
		return
	}
	if idx < t.DealerIndex || t.DealerIndex >= len(t.Players) {
		t.DealerIndex = (t.DealerIndex - 1 + len(t.Players)) % len(t.Players)
	}
	if t.ActiveIndex >= 0 && (idx < t.ActiveIndex || t.ActiveIndex >= len(t.Players)) {
		t.ActiveIndex = (t.ActiveIndex - 1 + len(t.Players)) % len(t.Players)
	}
}

// rotateDealer advances the button one non-spectator seat.
func (t *Table) rotateDealer() {
	n := len(t.Players)
	if n == 0 {
		t.DealerIndex = 0
		return
	}
	for k := 1; k <= n; k++ {
		idx := (t.DealerIndex + k) % n
		if !t.Players[idx].Spectator {
			t.DealerIndex = idx
			return
		}
	}
}

// nextPlayer returns the index of the next player after from who can act,
// or -1 if nobody qualifies.
func (t *Table) nextPlayer(from int) int {
	n := len(t.Players)
	for k := 1; k <= n; k++ {
		idx := (from + k) % n
		if t.Players[idx].CanAct() {
			return idx
		}
	}
	return -1
}

// nextEligible returns the next seat after from that can be dealt in.
// Callers ensure at least one eligible player exists.
func (t *Table) nextEligible(from int) int {
	n := len(t.Players)
	for k := 1; k <= n; k++ {
		idx := (from + k) % n
		if t.Players[idx].Eligible() && t.Players[idx].DealtIn() {
			return idx
		}
	}
	return from
}

// seatsAfterDealer returns all seat indices starting one past the button.
func (t *Table) seatsAfterDealer() []int {
	n := len(t.Players)
	out := make([]int, 0, n)
	for k := 1; k <= n; k++ {
		out = append(out, (t.DealerIndex+k)%n)
	}
	return out
}

func (t *Table) countEligible() int {
	n := 0
	for _, p := range t.Players {
		if p.Eligible() {
			n++
		}
	}
	return n
}

func (t *Table) countInHand() int {
	n := 0
	for _, p := range t.Players {
		if p.InHand() {
			n++
		}
	}
	return n
}

func (t *Table) countCanAct() int {
	n := 0
	for _, p := range t.Players {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// armTurn bumps the turn sequence and returns the arm effect for the
// current active player.
func (t *Table) armTurn() Effect {
	t.TurnSeq++
	return Effect{Kind: ArmTurnTimer, Seq: t.TurnSeq}
}

// ActivePlayer returns the player whose turn it is, or nil.
func (t *Table) ActivePlayer() *Player {
	if t.ActiveIndex < 0 || t.ActiveIndex >= len(t.Players) {
		return nil
	}
	return t.Players[t.ActiveIndex]
}

func (t *Table) log(format string, args ...any) {
	t.History = append(t.History, fmt.Sprintf(format, args...))
}
