package capability

import "fmt"

// EbookCapability synthesizes a chapter outline from
// parameters["topic"]/["audience"]/["num_chapters"], reporting
// progress per chapter — an illustrative, LLM-free stand-in for
// original_source/ebooks/generate_book.py's outline/chapter generation
// (content-generation LLM clients are out of scope, spec.md §1).
type EbookCapability struct{}

func (e *EbookCapability) Execute(params map[string]any, report ProgressFunc) Result {
	topic, _ := params["topic"].(string)
	if topic == "" {
		return Result{Status: StatusFailed, Message: "ebook: missing required parameter \"topic\""}
	}
	audience, _ := params["audience"].(string)
	if audience == "" {
		audience = "general readers"
	}
	numChapters := intParam(params["num_chapters"], 10)
	if numChapters < 1 {
		numChapters = 1
	}

	chapters := make([]map[string]any, 0, numChapters)
	for i := 1; i <= numChapters; i++ {
		chapters = append(chapters, map[string]any{
			"number": i,
			"title":  fmt.Sprintf("Chapter %d: %s, Part %d", i, topic, i),
		})
		if report != nil {
			report(float64(i) / float64(numChapters) * 100)
		}
	}

	return Result{
		Status: StatusCompleted,
		Result: map[string]any{
			"title":        fmt.Sprintf("%s: A Guide for %s", topic, audience),
			"chapter_count": numChapters,
			"chapters":     chapters,
		},
	}
}

func intParam(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}
