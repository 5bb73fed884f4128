package game

// Phase represents the state of the room's hand lifecycle.
type Phase int

const (
	Lobby Phase = iota
	Dealing
	PreFlop
	Flop
	Turn
	River
	Reveal
	Cleanup
)

func (p Phase) String() string {
	return [...]string{"lobby", "dealing", "preflop", "flop", "turn", "river", "reveal", "cleanup"}[p]
}

// Betting reports whether the phase accepts player intents.
func (p Phase) Betting() bool {
	return p >= PreFlop && p <= River
}

// IntentKind represents a player intent.
type IntentKind int

const (
	Commit IntentKind = iota
	Check
	Fold
	// Pass resolves to a check when nothing is owed, otherwise a fold.
	Pass
)

func (k IntentKind) String() string {
	return [...]string{"commit", "check", "fold", "pass"}[k]
}

// EffectKind identifies a side effect the actor must run after a transition.
// The machine never performs I/O or timer work itself.
type EffectKind int

const (
	// ArmTurnTimer starts the inactivity timer for the active player.
	ArmTurnTimer EffectKind = iota
	// DisarmTurnTimer cancels any pending inactivity timer.
	DisarmTurnTimer
	// ScheduleCleanup requests the reveal-delay timer that finishes the hand.
	ScheduleCleanup
)

// Effect is an instruction emitted by a transition.
type Effect struct {
	Kind EffectKind
	// Seq identifies the turn the timer belongs to, so a stale expiry
	// cannot fold a player who already acted.
	Seq uint64
}
