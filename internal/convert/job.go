package convert

import (
	"context"
	"sync"
)

// JobState is the conversion job state.
type JobState int

const (
	JobIdle JobState = iota
	JobConverting
	JobSucceeded
	JobFailedNetwork
	JobFailedOther
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobConverting:
		return "converting"
	case JobSucceeded:
		return "succeeded"
	case JobFailedNetwork:
		return "failed_network"
	case JobFailedOther:
		return "failed_other"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen without an
// explicit retry.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailedNetwork, JobFailedOther, JobCancelled:
		return true
	default:
		return false
	}
}

// jobTransitions is the legal transition table. Retry re-enters
// Converting from either failure state; everything else is rejected.
var jobTransitions = map[JobState][]JobState{
	JobIdle:          {JobConverting},
	JobConverting:    {JobSucceeded, JobFailedNetwork, JobFailedOther, JobCancelled},
	JobFailedNetwork: {JobConverting},
	JobFailedOther:   {JobConverting},
}

// Job is a single conversion attempt chain tied 1:1 to a voice note.
type Job struct {
	ID          int64
	NoteID      int64
	ArtifactRef string

	mu        sync.Mutex
	state     JobState
	retries   int
	errMsg    string
	cancelRun context.CancelFunc
	cancelled bool
}

// transition moves the job to next when the table allows it. Callers
// hold j.mu.
func (j *Job) transition(next JobState) bool {
	for _, allowed := range jobTransitions[j.state] {
		if allowed == next {
			j.state = next
			return true
		}
	}
	return false
}

// View is an immutable snapshot of a job for callers to observe.
type View struct {
	ID      int64  `json:"id"`
	NoteID  int64  `json:"note_id"`
	State   string `json:"state"`
	Retries int    `json:"retries"`
	Error   string `json:"error,omitempty"`
}

// Snapshot returns the job's current observable state.
func (j *Job) Snapshot() View {
	j.mu.Lock()
	defer j.mu.Unlock()
	return View{
		ID:      j.ID,
		NoteID:  j.NoteID,
		State:   j.state.String(),
		Retries: j.retries,
		Error:   j.errMsg,
	}
}
