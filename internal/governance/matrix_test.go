package governance

import "testing"

func TestMatrix_UnknownPairFailsClosed(t *testing.T) {
	m := NewMatrix(nil)
	got := m.ApprovalLevel("unknown", "unknown", nil)
	if got != LevelApprovalRequired {
		t.Fatalf("ApprovalLevel for unknown pair = %v, want %v", got, LevelApprovalRequired)
	}
}

func TestMatrix_FirstMatchingRuleWins(t *testing.T) {
	m := NewMatrix(nil)
	m.Update("financial", "spend_money", RuleSet{
		Default: LevelApprovalRequired,
		Conditions: []Rule{
			{If: []Predicate{{Field: "amount", Operator: OpGt, Value: 50.0}}, Then: LevelProhibited},
		},
	})

	if got := m.ApprovalLevel("financial", "spend_money", map[string]any{"amount": 30.0}); got != LevelApprovalRequired {
		t.Errorf("amount=30 got %v, want %v", got, LevelApprovalRequired)
	}
	if got := m.ApprovalLevel("financial", "spend_money", map[string]any{"amount": 100.0}); got != LevelProhibited {
		t.Errorf("amount=100 got %v, want %v", got, LevelProhibited)
	}
}

func TestMatrix_MissingFieldIsFalsePredicate(t *testing.T) {
	m := NewMatrix(nil)
	m.Update("content", "generate_ebook", RuleSet{
		Default: LevelAutonomous,
		Conditions: []Rule{
			{If: []Predicate{{Field: "contains_sensitive_topics", Operator: OpIsTrue}}, Then: LevelApprovalRequired},
		},
	})

	got := m.ApprovalLevel("content", "generate_ebook", map[string]any{})
	if got != LevelAutonomous {
		t.Errorf("missing field got %v, want %v", got, LevelAutonomous)
	}
}

func TestMatrix_UpdateDropsMalformedRules(t *testing.T) {
	m := NewMatrix(nil)
	m.Update("ops", "reboot", RuleSet{
		Default: LevelAutonomous,
		Conditions: []Rule{
			{If: nil, Then: Level("NOT_A_LEVEL")},
			{If: []Predicate{{Field: "force", Operator: OpIsTrue}}, Then: LevelProhibited},
		},
	})

	set := m.Inspect()["ops.reboot"]
	if len(set.Conditions) != 1 {
		t.Fatalf("expected malformed rule dropped, got %d conditions", len(set.Conditions))
	}
	if set.Conditions[0].Then != LevelProhibited {
		t.Errorf("expected surviving rule to be the valid one, got %v", set.Conditions[0].Then)
	}
}

func TestMatrix_UpdateFallsBackOnInvalidDefault(t *testing.T) {
	m := NewMatrix(nil)
	m.Update("ops", "reboot", RuleSet{Default: Level("garbage")})

	set := m.Inspect()["ops.reboot"]
	if set.Default != LevelApprovalRequired {
		t.Errorf("expected fail-closed default, got %v", set.Default)
	}
}

func TestSeedDefaults_SpendMoney(t *testing.T) {
	m := NewMatrix(nil)
	SeedDefaults(m)

	if got := m.ApprovalLevel("financial", "spend_money", map[string]any{"amount": 30.0}); got != LevelApprovalRequired {
		t.Errorf("amount=30 got %v, want %v", got, LevelApprovalRequired)
	}
	if got := m.ApprovalLevel("financial", "spend_money", map[string]any{"amount": 100.0}); got != LevelProhibited {
		t.Errorf("amount=100 got %v, want %v", got, LevelProhibited)
	}
}

func TestSeedDefaults_GenerateEbook(t *testing.T) {
	m := NewMatrix(nil)
	SeedDefaults(m)

	if got := m.ApprovalLevel("content", "generate_ebook", map[string]any{}); got != LevelAutonomous {
		t.Errorf("got %v, want %v", got, LevelAutonomous)
	}
}

func TestPredicate_InOperator(t *testing.T) {
	p := Predicate{Field: "kind", Operator: OpIn, Value: []any{"ebook", "writing"}}
	if !p.evaluate(map[string]any{"kind": "ebook"}) {
		t.Error("expected ebook to be in list")
	}
	if p.evaluate(map[string]any{"kind": "pinterest"}) {
		t.Error("expected pinterest to not be in list")
	}
}
