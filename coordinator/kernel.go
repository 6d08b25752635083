package coordinator

import (
	"errors"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/fixed"
	"github.com/psyche-network/psyche/types"
)

// maxRunIDLen bounds the human-readable run identifier.
const maxRunIDLen = 64

// Coordinator is the process-wide, single-owner kernel state. Every
// exported mutator is a total function of (state, inputs); there is no
// internal locking because the kernel is driven by exactly one owner
// (the centralized server task, or the on-chain transaction runtime).
type Coordinator struct {
	RunID  string
	Config Config
	Model  Model

	RunState              RunState
	RunStateStartUnix     int64
	LastTickUnix          int64
	TickCount             uint64
	Progress              Progress
	PrevEpochProgress     Progress
	PrevEpochHeight       uint32
	EpochState            EpochState
	ClientsState          *ClientsState
	LastHealthChecks      HealthChecks
	witnessSelectionCache *committee.Selection // memoizes the current round's selection
}

// HealthChecks is the per-client self-report the centralized wire
// protocol accepts. It is recorded for observability and never consulted
// by scoring, which derives solely from Bloom witnesses so both hosts
// score identically.
type HealthChecks struct {
	TrainerHealthy    bool
	CheckpointHealthy bool
	P2PHealthy        bool
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Marshal flattens HealthChecks as three bytes, for the centralized wire
// protocol's HealthCheck(HealthChecks) frame.
func (h HealthChecks) Marshal() []byte {
	return []byte{boolByte(h.TrainerHealthy), boolByte(h.CheckpointHealthy), boolByte(h.P2PHealthy)}
}

// ErrMalformedHealthChecks is returned when a marshaled HealthChecks is the
// wrong length.
var ErrMalformedHealthChecks = errors.New("coordinator: malformed health checks")

// UnmarshalHealthChecks is the inverse of HealthChecks.Marshal.
func UnmarshalHealthChecks(b []byte) (HealthChecks, error) {
	if len(b) != 3 {
		return HealthChecks{}, ErrMalformedHealthChecks
	}
	return HealthChecks{
		TrainerHealthy:    b[0] != 0,
		CheckpointHealthy: b[1] != 0,
		P2PHealthy:        b[2] != 0,
	}, nil
}

// New creates an Uninitialized Coordinator. whitelistCap/clientsCap bound
// the fixed-capacity client tables.
func New(runID string, config Config, model Model, whitelistCap, clientsCap int) (*Coordinator, error) {
	if len(runID) == 0 {
		return nil, ErrConfigSanityCheckFailed
	}
	if _, err := fixed.NewString(runID, maxRunIDLen); err != nil {
		return nil, ErrConfigSanityCheckFailed
	}
	return &Coordinator{
		RunID:        runID,
		Config:       config,
		Model:        model,
		RunState:     Uninitialized,
		ClientsState: NewClientsState(whitelistCap, clientsCap),
		EpochState:   newEpochState(int(config.RoundsPerEpoch)),
	}, nil
}

// Halted reports whether the run is paused or finished.
func (c *Coordinator) Halted() bool {
	return c.RunState == Paused || c.RunState == Finished
}

func (c *Coordinator) bumpTick() {
	c.TickCount++
}

// Pause transitions the coordinator to Paused, stashing the current
// progress so Resume can restore it.
func (c *Coordinator) Pause() error {
	if c.RunState == Paused || c.RunState == Finished {
		return ErrInvalidRunState
	}
	c.PrevEpochProgress = c.Progress
	if len(c.EpochState.Rounds) > 0 {
		c.PrevEpochHeight = c.EpochState.CurrentRound().Height
	}
	c.RunState = Paused
	c.bumpTick()
	return nil
}

// Resume validates Config and Model and restarts the run at
// WaitingForMembers, restoring the stashed progress.
func (c *Coordinator) Resume(nowUnix int64) error {
	if c.RunState != Paused && c.RunState != Uninitialized {
		return ErrInvalidRunState
	}
	if err := c.Config.Check(); err != nil {
		return ErrConfigSanityCheckFailed
	}
	if err := c.Model.Check(); err != nil {
		return ErrModelSanityCheckFailed
	}
	c.Progress = c.PrevEpochProgress
	c.RunState = WaitingForMembers
	c.RunStateStartUnix = nowUnix
	c.ClientsState.BeginJoinWindow()
	c.bumpTick()
	return nil
}

// Outcome is the result of a successful Tick.
type Outcome struct {
	// EpochSummary is non-nil exactly when this tick closed out an epoch.
	EpochSummary *EpochSummary
}

// Tick is the kernel's sole time-driven mutator: it advances the run
// state machine and, at epoch boundaries, scores and ejects clients.
// activeClients is the host's current view of reachable clients.
func (c *Coordinator) Tick(activeClients []types.ClientId, nowUnix int64, randomSeed uint64) (Outcome, error) {
	if c.Halted() || c.RunState == Uninitialized {
		return Outcome{}, ErrInvalidRunState
	}

	// Any state but Paused/Finished reverts to WaitingForMembers if the
	// healthy set drops below min_clients.
	if c.RunState != WaitingForMembers && uint64(len(activeClients)) < c.Config.MinClients {
		c.dropToWaitingForMembers(nowUnix)
		c.LastTickUnix = nowUnix
		c.bumpTick()
		return Outcome{}, nil
	}

	var summary *EpochSummary
	switch c.RunState {
	case WaitingForMembers:
		// The very first epoch gates on init_min_clients (a run may want a
		// larger founding set than its running floor); once any round has
		// been seeded, re-entry only needs min_clients back.
		required := c.Config.MinClients
		if len(c.EpochState.Rounds) == 0 && c.Config.InitMinClients > required {
			required = c.Config.InitMinClients
		}
		if uint64(len(activeClients)) >= required {
			c.EpochState.Clients = append([]types.ClientId(nil), activeClients...)
			c.RunState = Warmup
			c.RunStateStartUnix = nowUnix
			c.seedFirstRoundOfEpoch(nowUnix, randomSeed)
		}

	case Warmup:
		if nowUnix >= c.RunStateStartUnix+int64(c.Config.WarmupTime) {
			if uint64(len(c.EpochState.Clients)) >= c.Config.MinClients {
				c.RunState = RoundTrain
				c.RunStateStartUnix = nowUnix
			} else {
				c.dropToWaitingForMembers(nowUnix)
			}
		}

	case RoundTrain:
		cur := c.EpochState.CurrentRound()
		earlyClose := cur.Witnesses.Len() > 0 && uint32(cur.Witnesses.Len()) >= c.Config.WitnessQuorum
		timedOut := nowUnix >= c.RunStateStartUnix+int64(c.Config.MaxRoundTrainTime)
		if timedOut || earlyClose {
			c.RunState = RoundWitness
			c.RunStateStartUnix = nowUnix
		}

	case RoundWitness:
		summary = c.closeRoundAndAdvance(nowUnix, randomSeed)

	case Cooldown:
		if nowUnix >= c.RunStateStartUnix+int64(c.Config.CooldownTime) {
			c.Progress.Epoch++
			c.EpochState.Clients = append([]types.ClientId(nil), activeClients...)
			c.RunState = Warmup
			c.RunStateStartUnix = nowUnix
			c.seedFirstRoundOfEpoch(nowUnix, randomSeed)
		}
	}

	c.LastTickUnix = nowUnix
	c.bumpTick()
	return Outcome{EpochSummary: summary}, nil
}

func (c *Coordinator) dropToWaitingForMembers(nowUnix int64) {
	c.RunState = WaitingForMembers
	c.RunStateStartUnix = nowUnix
	c.ClientsState.BeginJoinWindow()
}

func deriveRoundSeed(nowUnix int64, height uint32, hostSeed uint64) uint64 {
	if hostSeed != 0 {
		return hostSeed
	}
	var tsBytes [8]byte
	var heightBytes [8]byte
	u := uint64(nowUnix)
	for i := 0; i < 8; i++ {
		tsBytes[i] = byte(u)
		u >>= 8
	}
	h := uint64(height)
	for i := 0; i < 8; i++ {
		heightBytes[i] = byte(h)
		h >>= 8
	}
	digest := crypto.Sha256v(tsBytes[:], heightBytes[:])
	var seed uint64
	for i := 0; i < 8; i++ {
		seed = seed<<8 | uint64(digest[i])
	}
	return seed
}

func (c *Coordinator) newWitnessVec() *fixed.Vec[WitnessEntry] {
	return fixed.NewVec[WitnessEntry](int(c.Config.WitnessQuorum))
}

func (c *Coordinator) seedFirstRoundOfEpoch(nowUnix int64, hostSeed uint64) {
	var dataIndex uint64
	if len(c.EpochState.Rounds) > 0 {
		prev := c.EpochState.CurrentRound()
		dataIndex = prev.DataIndex + uint64(c.Config.BatchesPerRound)*uint64(c.Config.DataIndiciesPerBatch)
	}
	r := Round{
		Height:          c.nextHeight(),
		TieBreakerTasks: c.Config.TieBreakerTasks,
		DataIndex:       dataIndex,
		RandomSeed:      deriveRoundSeed(nowUnix, c.nextHeight(), hostSeed),
		Witnesses:       c.newWitnessVec(),
		ClientsLen:      uint32(len(c.EpochState.Clients)),
	}
	c.EpochState.pushRound(r, int(c.Config.RoundsPerEpoch))
	c.witnessSelectionCache = nil
}

func (c *Coordinator) nextHeight() uint32 {
	if len(c.EpochState.Rounds) == 0 {
		return 0
	}
	return c.EpochState.CurrentRound().Height + 1
}

// closeRoundAndAdvance is invoked on the tick that observes RoundWitness;
// it increments progress.step, then: if total_steps has been reached, it
// scores the epoch and moves to Finished; otherwise, at an epoch boundary,
// it scores the epoch and moves to Cooldown; otherwise it pushes a new
// Round and returns to RoundTrain.
func (c *Coordinator) closeRoundAndAdvance(nowUnix int64, hostSeed uint64) *EpochSummary {
	c.Progress.Step++

	if c.Progress.Step >= c.Config.TotalSteps {
		c.RunState = Finished
		c.RunStateStartUnix = nowUnix
		return c.scoreEpoch()
	}

	roundsCompletedThisEpoch := uint32(c.Progress.Step) - uint32(c.Progress.Epoch)*uint32(c.Config.RoundsPerEpoch)
	if roundsCompletedThisEpoch >= uint32(c.Config.RoundsPerEpoch) {
		summary := c.scoreEpoch()
		c.RunState = Cooldown
		c.RunStateStartUnix = nowUnix
		return summary
	}

	prev := c.EpochState.CurrentRound()
	r := Round{
		Height:          prev.Height + 1,
		TieBreakerTasks: c.Config.TieBreakerTasks,
		DataIndex:       prev.DataIndex + uint64(c.Config.BatchesPerRound)*uint64(c.Config.DataIndiciesPerBatch),
		RandomSeed:      deriveRoundSeed(nowUnix, prev.Height+1, hostSeed),
		Witnesses:       c.newWitnessVec(),
		ClientsLen:      uint32(len(c.EpochState.Clients)),
	}
	c.EpochState.pushRound(r, int(c.Config.RoundsPerEpoch))
	c.witnessSelectionCache = nil
	c.RunState = RoundTrain
	c.RunStateStartUnix = nowUnix
	return nil
}

// Witness is the kernel's witness-intake mutator.
func (c *Coordinator) Witness(signer types.ClientId, w Witness, nowUnix int64) error {
	if c.RunState != RoundTrain && c.RunState != RoundWitness {
		return ErrInvalidRunState
	}
	if !c.isActiveClient(signer) {
		return ErrUnknownSigner
	}

	cur := c.EpochState.CurrentRound()
	sel, err := c.currentSelection()
	if err != nil {
		return ErrInvalidWitness
	}
	pos, eligible := sel.IsWitnessEligible(signer)
	if !eligible || uint64(pos) != w.Proof.MerkleProof.Position {
		return ErrInvalidWitness
	}
	if !committee.VerifyWitnessProof(sel.WitnessRoot(), cur.RandomSeed, w.Proof) {
		return ErrInvalidWitness
	}

	for _, entry := range cur.Witnesses.Slice() {
		if entry.Signer.Equal(signer) {
			return ErrDuplicateWitness
		}
	}
	if cur.Witnesses.Full() {
		return ErrWitnessesFull
	}
	if err := cur.Witnesses.Push(WitnessEntry{Signer: signer, Witness: w}); err != nil {
		return ErrWitnessesFull
	}
	c.LastTickUnix = nowUnix
	c.bumpTick()
	return nil
}

func (c *Coordinator) isActiveClient(id types.ClientId) bool {
	for _, cl := range c.EpochState.Clients {
		if cl.Equal(id) {
			return true
		}
	}
	return false
}

// currentSelection computes (and memoizes) the CommitteeSelection for the
// current round's frozen client set and seed.
func (c *Coordinator) currentSelection() (*committee.Selection, error) {
	if c.witnessSelectionCache != nil {
		return c.witnessSelectionCache, nil
	}
	cur := c.EpochState.CurrentRound()
	sel, err := committee.New(int(cur.TieBreakerTasks), int(c.Config.WitnessNodes), int(c.Config.VerificationPercent), c.EpochState.Clients, cur.RandomSeed)
	if err != nil {
		return nil, err
	}
	c.witnessSelectionCache = sel
	return sel, nil
}

// CurrentSelection exposes currentSelection for callers (client runtime,
// wire layer) that need the same committee/witness rosters the kernel
// used to validate a witness.
func (c *Coordinator) CurrentSelection() (*committee.Selection, error) {
	return c.currentSelection()
}

// RecordHealthChecks stores the most recent HealthChecks report, kept
// for observability only and never consulted by scoring.
func (c *Coordinator) RecordHealthChecks(h HealthChecks) {
	c.LastHealthChecks = h
}
