// Package call implements the two-party call signaling state machine: the
// offer/answer exchange and the candidate relay, both mediated by the
// signaling store, driving one negotiation engine per call attempt.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librecall/librecall/internal/engine"
	"github.com/librecall/librecall/internal/media"
	"github.com/librecall/librecall/internal/store"
	"github.com/librecall/librecall/internal/util"
)

var (
	// ErrCallNotFound is returned by StartAsJoiner when no call record
	// exists for the given invite token. Terminal; the call cannot be
	// recovered if the remote never created (or deleted) it.
	ErrCallNotFound = errors.New("call not found")

	// ErrInvalidOffer is returned by StartAsJoiner when the record exists
	// but carries no offer. Terminal.
	ErrInvalidOffer = errors.New("call record has no offer")
)

// endedWriteTimeout bounds the best-effort status write during hang-up.
const endedWriteTimeout = 5 * time.Second

// Session owns one call attempt for one participant. It exclusively owns its
// negotiation engine and every store watch it opens; all are torn down
// together on every exit path.
//
// Handlers triggered by store or engine callbacks take the session lock,
// check the phase, and drop the event if the session is already terminal.
// The lock is never held across store or engine calls, so a watch callback
// may safely fire again before a previous invocation's write completes.
type Session struct {
	store  store.Store
	engine engine.Engine
	stream *media.Stream // optional; released on teardown

	ctx    context.Context
	cancel context.CancelFunc

	connectedCh chan struct{}
	doneCh      chan struct{}

	mu              sync.Mutex
	role            Role
	callID          string
	phase           Phase
	remoteCommitted bool
	connectedFired  bool
	pendingRemote   []engine.Candidate // held until the remote description lands
	cancels         []store.CancelFunc
}

// NewSession creates a session around an engine and an optional local media
// stream. The engine must be fresh: the session assumes sole ownership and
// closes it on teardown.
func NewSession(ctx context.Context, st store.Store, eng engine.Engine, stream *media.Stream) *Session {
	sCtx, sCancel := context.WithCancel(ctx)
	return &Session{
		store:       st,
		engine:      eng,
		stream:      stream,
		ctx:         sCtx,
		cancel:      sCancel,
		connectedCh: make(chan struct{}),
		doneCh:      make(chan struct{}),
		phase:       PhaseInitializing,
	}
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// Connected returns a channel closed when the remote description has been
// committed and the session is logically connected.
func (s *Session) Connected() <-chan struct{} {
	return s.connectedCh
}

// Done returns a channel closed when the session reaches Ended or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CallID returns the call's invite token (empty before StartAsCreator has
// allocated one).
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// ---------------------------------------------------------------------------
// Creator flow
// ---------------------------------------------------------------------------

// StartAsCreator allocates a new call record, publishes the local offer, and
// subscribes for the answer and the joiner's candidates. The returned id is
// the invite token to share out-of-band; until the offer write lands, the
// call is not discoverable by any joiner.
func (s *Session) StartAsCreator() (string, error) {
	if err := s.attachLocalTracks(); err != nil {
		return "", s.failSetup(err)
	}

	id, err := s.store.Create(s.ctx, callsCollection)
	if err != nil {
		return "", s.failSetup(fmt.Errorf("allocate call record: %w", err))
	}

	s.mu.Lock()
	s.role = RoleCreator
	s.callID = id
	s.mu.Unlock()

	// Register before committing the local description so no early
	// candidate is lost.
	s.engine.OnLocalCandidate(func(c engine.Candidate) {
		s.publishLocalCandidate(offerCandidatesPath(id), c)
	})

	offer, err := s.engine.CreateOffer()
	if err != nil {
		return "", s.failSetup(err)
	}
	if err := s.engine.CommitLocal(offer); err != nil {
		return "", s.failSetup(err)
	}
	s.setPhase(PhaseNegotiatingLocal)

	// Publication point: the record becomes visible to joiners here.
	if err := s.store.Set(s.ctx, callPath(id), store.Document{fieldOffer: descriptionDoc(offer)}); err != nil {
		return "", s.failSetup(fmt.Errorf("publish offer: %w", err))
	}
	s.setPhase(PhaseAwaitingRemote)

	cancelDoc, err := s.store.WatchDocument(s.ctx, callPath(id), s.onCallRecord)
	if err != nil {
		return "", s.failSetup(fmt.Errorf("watch call record: %w", err))
	}
	s.addCancel(cancelDoc)

	cancelCol, err := s.store.WatchCollection(s.ctx, answerCandidatesPath(id), s.onRemoteCandidate)
	if err != nil {
		return "", s.failSetup(fmt.Errorf("watch answer candidates: %w", err))
	}
	s.addCancel(cancelCol)

	util.LogInfo("call created: %s", id)
	return id, nil
}

// onCallRecord handles every snapshot of the call record. The watch may fire
// any number of times (first snapshot, candidate-unrelated updates, the
// answer write); the remote description is committed exactly once, when an
// answer is first observed.
func (s *Session) onCallRecord(doc store.Document) {
	answer, ok := descriptionAt(doc, fieldAnswer)

	s.mu.Lock()
	if s.phase != PhaseAwaitingRemote || s.remoteCommitted || !ok {
		s.mu.Unlock()
		return
	}
	s.remoteCommitted = true
	s.mu.Unlock()

	if err := s.engine.CommitRemote(answer); err != nil {
		s.fail(fmt.Errorf("commit remote answer: %w", err))
		return
	}
	s.setPhase(PhaseConnected)
	util.LogInfo("remote answer committed")
	s.flushPendingCandidates()
}

// ---------------------------------------------------------------------------
// Joiner flow
// ---------------------------------------------------------------------------

// StartAsJoiner reads the call record for the given invite token, publishes
// the local answer, and subscribes for the creator's candidates. Returns
// ErrCallNotFound or ErrInvalidOffer when the record is absent or was never
// published; both are terminal.
func (s *Session) StartAsJoiner(id string) error {
	s.mu.Lock()
	s.role = RoleJoiner
	s.callID = id
	s.mu.Unlock()

	if err := s.attachLocalTracks(); err != nil {
		return s.failSetup(err)
	}

	doc, err := s.store.Get(s.ctx, callPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return s.failSetup(fmt.Errorf("%w: %s", ErrCallNotFound, id))
	}
	if err != nil {
		return s.failSetup(fmt.Errorf("read call record: %w", err))
	}

	offer, ok := descriptionAt(doc, fieldOffer)
	if !ok {
		return s.failSetup(fmt.Errorf("%w: %s", ErrInvalidOffer, id))
	}

	s.engine.OnLocalCandidate(func(c engine.Candidate) {
		s.publishLocalCandidate(answerCandidatesPath(id), c)
	})

	if err := s.engine.CommitRemote(offer); err != nil {
		return s.failSetup(err)
	}
	s.mu.Lock()
	s.remoteCommitted = true
	s.mu.Unlock()

	answer, err := s.engine.CreateAnswer()
	if err != nil {
		return s.failSetup(err)
	}
	if err := s.engine.CommitLocal(answer); err != nil {
		return s.failSetup(err)
	}
	s.setPhase(PhaseNegotiatingLocal)

	// Update, not Set: must never clobber the creator's offer.
	if err := s.store.Update(s.ctx, callPath(id), store.Document{fieldAnswer: descriptionDoc(answer)}); err != nil {
		return s.failSetup(fmt.Errorf("publish answer: %w", err))
	}
	s.setPhase(PhaseAwaitingRemote)

	// The remote offer was committed eagerly, so the wait collapses.
	s.setPhase(PhaseConnected)

	// No record watch: the joiner expects no further document-level changes
	// once it has the offer.
	cancelCol, err := s.store.WatchCollection(s.ctx, offerCandidatesPath(id), s.onRemoteCandidate)
	if err != nil {
		return s.failSetup(fmt.Errorf("watch offer candidates: %w", err))
	}
	s.addCancel(cancelCol)

	util.LogInfo("joined call: %s", id)
	return nil
}

// ---------------------------------------------------------------------------
// Candidate relay
// ---------------------------------------------------------------------------

// publishLocalCandidate appends one locally discovered candidate to this
// side's sub-collection. Fire-and-forget once connected — ICE gathers many
// candidates, losing one does not doom the connection — but a failure while
// setup is still in flight fails the session.
func (s *Session) publishLocalCandidate(path string, c engine.Candidate) {
	s.mu.Lock()
	if s.phase.terminal() {
		s.mu.Unlock()
		return
	}
	connected := s.phase == PhaseConnected
	s.mu.Unlock()

	doc, err := candidateDoc(c)
	if err != nil {
		util.LogWarning("skipping malformed local candidate: %v", err)
		return
	}

	if _, err := s.store.Add(s.ctx, path, doc); err != nil {
		if connected {
			util.LogWarning("dropping local candidate: %v", err)
			return
		}
		s.fail(fmt.Errorf("publish candidate: %w", err))
	}
}

// onRemoteCandidate forwards one candidate record appended by the other side
// into the engine. The engine rejects candidates that arrive before the
// remote description, so until the session is connected they are held and
// flushed after the commit. Records arriving after teardown are dropped
// silently; duplicate deliveries are tolerated (the engine deduplicates).
func (s *Session) onRemoteCandidate(change store.Change) {
	if change.Kind != store.ChangeAdded {
		return
	}

	candidate, err := candidateFromDoc(change.Data)
	if err != nil {
		util.LogWarning("skipping malformed remote candidate %s: %v", change.ID, err)
		return
	}

	s.mu.Lock()
	if s.phase.terminal() {
		s.mu.Unlock()
		return
	}
	if s.phase != PhaseConnected {
		s.pendingRemote = append(s.pendingRemote, candidate)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.engine.AddRemoteCandidate(candidate); err != nil {
		util.LogWarning("remote candidate %s rejected: %v", change.ID, err)
	}
}

// flushPendingCandidates forwards candidates that arrived ahead of the
// remote description.
func (s *Session) flushPendingCandidates() {
	s.mu.Lock()
	pending := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()

	for _, candidate := range pending {
		if err := s.engine.AddRemoteCandidate(candidate); err != nil {
			util.LogWarning("buffered remote candidate rejected: %v", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

// HangUp terminates the session: stops event processing, releases media and
// the engine, and best-effort marks the call record as ended. Safe to call
// from any phase, any number of times, including before setup completed.
func (s *Session) HangUp() {
	callID, released := s.release(PhaseEnded)
	if !released {
		return
	}

	if callID != "" {
		// Best-effort: a record that was never published (or a store that
		// is already gone) must not block teardown.
		ctx, cancel := context.WithTimeout(context.Background(), endedWriteTimeout)
		defer cancel()

		err := s.store.Update(ctx, callPath(callID), store.Document{
			fieldStatus:  statusEnded,
			fieldEndedAt: time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			util.LogDebug("could not mark call %s ended: %v", callID, err)
		}
	}

	util.LogInfo("call ended")
	close(s.doneCh)
}

// fail moves the session to Failed and releases everything. All fatal errors
// collapse into this one observable state; callers needing finer diagnostics
// inspect the log.
func (s *Session) fail(err error) {
	if _, released := s.release(PhaseFailed); !released {
		return
	}
	util.LogError("call session failed: %v", err)
	close(s.doneCh)
}

// failSetup is fail for the Start* paths, passing the error through to the
// caller.
func (s *Session) failSetup(err error) error {
	s.fail(err)
	return err
}

// release performs the exactly-once transition into a terminal phase and
// tears down watches, media, and the engine. Reports false if the session
// was already terminal. Watches are cancelled before anything else so no
// event handler observes a half-released session; the phase flip alone
// already makes concurrent handlers drop their events.
func (s *Session) release(terminal Phase) (callID string, released bool) {
	s.mu.Lock()
	if s.phase.terminal() {
		s.mu.Unlock()
		return "", false
	}
	s.phase = terminal
	callID = s.callID
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	s.cancel()
	for _, cancelWatch := range cancels {
		cancelWatch()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	if err := s.engine.Close(); err != nil {
		util.LogWarning("engine close: %v", err)
	}
	return callID, true
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *Session) attachLocalTracks() error {
	if s.stream == nil {
		return nil
	}
	for _, track := range s.stream.Tracks() {
		if err := s.engine.AddTrack(track); err != nil {
			return fmt.Errorf("attach local track: %w", err)
		}
	}
	return nil
}

// setPhase advances the lifecycle, never overriding a terminal phase (a
// hang-up racing setup must win).
func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.terminal() {
		return
	}
	s.phase = p
	if p == PhaseConnected && !s.connectedFired {
		s.connectedFired = true
		close(s.connectedCh)
	}
}

// addCancel records a watch cancel; if the session terminated while the
// watch was being registered, the watch is stopped immediately.
func (s *Session) addCancel(cancelWatch store.CancelFunc) {
	s.mu.Lock()
	if s.phase.terminal() {
		s.mu.Unlock()
		cancelWatch()
		return
	}
	s.cancels = append(s.cancels, cancelWatch)
	s.mu.Unlock()
}
