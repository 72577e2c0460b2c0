package capability

import "fmt"

// WritingCapability drafts short-form content from
// parameters["brief"]/["word_count"] — an illustrative, LLM-free
// stand-in for original_source/task_modules/freelance_writing_task.py's
// {status, result, message} contract (content-generation LLM clients
// are out of scope, spec.md §1).
type WritingCapability struct{}

func (w *WritingCapability) Execute(params map[string]any, report ProgressFunc) Result {
	brief, _ := params["brief"].(string)
	if brief == "" {
		return Result{Status: StatusFailed, Message: "writing: missing required parameter \"brief\""}
	}
	wordCount := intParam(params["word_count"], 500)
	if wordCount < 1 {
		return Result{Status: StatusFailed, Message: "writing: word_count must be positive"}
	}

	if report != nil {
		report(50)
	}
	draft := fmt.Sprintf("Draft on %q targeting %d words.", brief, wordCount)
	if report != nil {
		report(100)
	}

	return Result{
		Status: StatusCompleted,
		Result: map[string]any{
			"draft":      draft,
			"word_count": wordCount,
		},
	}
}
