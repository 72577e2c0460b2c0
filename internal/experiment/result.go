package experiment

// StartOutcome classifies what Start(id) actually did, per spec.md
// §9's execute_action branches collapsed into the registry's view.
type StartOutcome string

const (
	// StartOutcomeRunning means the experiment is now RUNNING: the
	// Autonomy Facade permitted the action (autonomously or with a
	// notify-only annotation) and the task has been submitted.
	StartOutcomeRunning StartOutcome = "running"
	// StartOutcomePending means the action requires human approval;
	// the experiment remains DEFINED until a decision is made.
	StartOutcomePending StartOutcome = "pending"
	// StartOutcomeProhibited means the Decision Matrix forbids the
	// action outright; the experiment remains DEFINED.
	StartOutcomeProhibited StartOutcome = "prohibited"
)

// StartResult is returned by Start(id).
type StartResult struct {
	Outcome   StartOutcome
	Reason    string
	RequestID string
}
