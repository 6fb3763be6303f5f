package audit

// Audit event actions. Each constant corresponds to one lifecycle hook and
// becomes the Action field of the audit event. Terminal outcomes split into
// completed and failed so the trail reads without status decoding.
const (
	ActionJobSubmitted = "job.submitted"
	ActionJobDispatch  = "job.dispatched"
	ActionJobStopped   = "job.stopped"
	ActionJobRecovered = "job.recovered"
	ActionJobCompleted = "job.completed"
	ActionJobFailed    = "job.failed"
)

// CategoryJob groups all bulk job actions.
const CategoryJob = "bulkq.job"

// ResourceJob is the Resource field of every event this extension emits.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobSubmitted,
		ActionJobDispatch,
		ActionJobStopped,
		ActionJobRecovered,
		ActionJobCompleted,
		ActionJobFailed,
	}
}
