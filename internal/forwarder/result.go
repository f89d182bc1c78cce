package forwarder

import "github.com/shineum/mail2sms/internal/telstra"

// Stage identifies a step of the forwarding pipeline.
type Stage int

const (
	// StageNone means no step failed.
	StageNone Stage = iota
	StageSender
	StageHealth
	StageAuth
	StageSend
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageSender:
		return "sender"
	case StageHealth:
		return "health"
	case StageAuth:
		return "auth"
	case StageSend:
		return "send"
	default:
		return "unknown"
	}
}

// Result is the outcome of one invocation: either SMS is set, or FailedAt
// names the step that stopped the pipeline and Err says why.
type Result struct {
	FailedAt Stage
	Err      error
	SMS      *telstra.SendResult
}

// OK reports whether the SMS was accepted by the provider.
func (r Result) OK() bool {
	return r.Err == nil
}

func failed(stage Stage, err error) Result {
	return Result{FailedAt: stage, Err: err}
}
