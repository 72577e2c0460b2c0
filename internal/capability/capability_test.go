package capability

import "testing"

func TestRegistry_BuiltInKinds(t *testing.T) {
	r := NewRegistry()

	for _, kind := range []Kind{KindEbook, KindWriting, KindAffiliateSite, KindPinterest} {
		if _, err := r.New(kind); err != nil {
			t.Errorf("New(%s): unexpected error: %v", kind, err)
		}
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New(Kind("unknown")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestEbookCapability_Execute(t *testing.T) {
	var progress []float64
	c := &EbookCapability{}
	result := c.Execute(map[string]any{
		"topic":        "gardening",
		"audience":     "beginners",
		"num_chapters": 3.0,
	}, func(p float64) { progress = append(progress, p) })

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Message)
	}
	if result.Result["chapter_count"] != 3 {
		t.Fatalf("expected 3 chapters, got %v", result.Result["chapter_count"])
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress reports, got %d", len(progress))
	}
	if progress[len(progress)-1] != 100 {
		t.Fatalf("expected final progress report of 100, got %v", progress[len(progress)-1])
	}
}

func TestEbookCapability_MissingTopic(t *testing.T) {
	c := &EbookCapability{}
	result := c.Execute(map[string]any{}, nil)
	if result.Status != StatusFailed {
		t.Fatal("expected failure for missing topic")
	}
}

func TestWritingCapability_Execute(t *testing.T) {
	c := &WritingCapability{}
	result := c.Execute(map[string]any{"brief": "intro to Go", "word_count": 800.0}, nil)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Message)
	}
	if result.Result["word_count"] != 800 {
		t.Fatalf("expected word_count 800, got %v", result.Result["word_count"])
	}
}

func TestWritingCapability_MissingBrief(t *testing.T) {
	c := &WritingCapability{}
	result := c.Execute(map[string]any{}, nil)
	if result.Status != StatusFailed {
		t.Fatal("expected failure for missing brief")
	}
}

func TestStubCapability_ReportsNotInstalled(t *testing.T) {
	r := NewRegistry()
	c, _ := r.New(KindAffiliateSite)
	result := c.Execute(nil, nil)

	if result.Status != StatusFailed {
		t.Fatal("expected stub capability to fail")
	}
	if result.Message != "capability not installed" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}
