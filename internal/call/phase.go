package call

// Phase is the lifecycle state of a call session.
//
//	Initializing → NegotiatingLocal   local description created & committed
//	NegotiatingLocal → AwaitingRemote local description published to store
//	AwaitingRemote → Connected        remote description committed
//	any → Failed                      device/negotiation/store error
//	any → Ended                       explicit hang-up
//
// Connected is inferred: the session is logically connected once the remote
// description is committed; actual media flow belongs to the engine.
type Phase string

const (
	PhaseInitializing     Phase = "initializing"
	PhaseNegotiatingLocal Phase = "negotiating-local"
	PhaseAwaitingRemote   Phase = "awaiting-remote"
	PhaseConnected        Phase = "connected"
	PhaseEnded            Phase = "ended"
	PhaseFailed           Phase = "failed"
)

// terminal reports whether p admits no further transitions. Every event
// handler checks this first; events arriving after teardown are no-ops.
func (p Phase) terminal() bool {
	return p == PhaseEnded || p == PhaseFailed
}

// Role fixes which half of the call record a session writes.
type Role string

const (
	RoleCreator Role = "creator"
	RoleJoiner  Role = "joiner"
)
