package job

import (
	"fmt"
	"time"
)

// Actor identifies who is requesting a status transition. The legal edges
// differ by actor: only the worker may complete a job, only a caller may
// pause or resubmit one, and recovery may only force a failure.
type Actor string

const (
	// ActorCaller is the submitting user (via the API layer).
	ActorCaller Actor = "caller"
	// ActorWorker is the external lookup worker reporting progress.
	ActorWorker Actor = "worker"
	// ActorRecovery is the stuck-job sweeper.
	ActorRecovery Actor = "recovery"
)

// InvalidTransitionError names an illegal state-machine edge. It is never
// swallowed: it indicates a caller or recovery bug and is logged with the
// job id, the attempted edge, and the actor.
type InvalidTransitionError struct {
	From  Status
	To    Status
	Actor Actor
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job: illegal transition %s -> %s by %s", e.From, e.To, e.Actor)
}

// edges maps each legal (from, to) pair to the actors allowed to drive it.
var edges = map[Status]map[Status][]Actor{
	StatusPending: {
		StatusProcessing: {ActorCaller, ActorWorker},
		StatusPaused:     {ActorCaller},
		StatusFailed:     {ActorCaller},
	},
	StatusPaused: {
		StatusPending: {ActorCaller},
	},
	StatusProcessing: {
		StatusCompleted: {ActorWorker},
		StatusFailed:    {ActorWorker, ActorCaller, ActorRecovery},
	},
	StatusFailed: {
		StatusPending: {ActorCaller},
	},
}

// CanTransition reports whether actor may move a job from one status to
// another, without applying anything.
func CanTransition(from, to Status, actor Actor) bool {
	actors, ok := edges[from][to]
	if !ok {
		return false
	}
	for _, a := range actors {
		if a == actor {
			return true
		}
	}
	return false
}

// Transition applies the requested status to j and refreshes UpdatedAt, or
// returns an InvalidTransitionError naming the illegal edge. It is the only
// function in bulkq that writes Job.Status.
//
// Side effects of specific edges:
//   - into a terminal status: CompletedAt is set to now
//   - failed -> pending (manual resubmission): RetryCount resets to zero,
//     ErrorMessage and the terminal timestamps are cleared
func Transition(j *Job, to Status, actor Actor, now time.Time) error {
	if !CanTransition(j.Status, to, actor) {
		return &InvalidTransitionError{From: j.Status, To: to, Actor: actor}
	}

	from := j.Status
	j.Status = to
	j.UpdatedAt = now

	if to.Terminal() {
		t := now
		j.CompletedAt = &t
	}

	if from == StatusFailed && to == StatusPending {
		j.RetryCount = 0
		j.ErrorMessage = ""
		j.CompletedAt = nil
		j.StoppedAt = nil
	}

	return nil
}
