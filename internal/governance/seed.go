package governance

// SeedDefaults loads the documented default policy per category/action.
// Operator docs are regenerated from Matrix.Inspect, so these entries are
// the canonical source of truth for what ships out of the box.
func SeedDefaults(m *Matrix) {
	m.Update("financial", "spend_money", RuleSet{
		Default: LevelApprovalRequired,
		Conditions: []Rule{
			{If: []Predicate{{Field: "amount", Operator: OpGt, Value: 50.0}}, Then: LevelProhibited},
		},
	})

	m.Update("content", "generate_ebook", RuleSet{
		Default: LevelAutonomous,
		Conditions: []Rule{
			{If: []Predicate{{Field: "contains_sensitive_topics", Operator: OpIsTrue}}, Then: LevelApprovalRequired},
		},
	})

	m.Update("content", "generate_writing", RuleSet{
		Default: LevelAutonomous,
		Conditions: []Rule{
			{If: []Predicate{{Field: "contains_sensitive_topics", Operator: OpIsTrue}}, Then: LevelApprovalRequired},
		},
	})

	m.Update("experiment-management", "start_experiment", RuleSet{
		Default: LevelAutonomous,
		Conditions: []Rule{
			{If: []Predicate{{Field: "critical_system", Operator: OpIsTrue}}, Then: LevelApprovalRequired},
		},
	})

	m.Update("experiment-management", "stop_experiment", RuleSet{
		Default: LevelAutonomous,
	})

	m.Update("publishing", "affiliate_site", RuleSet{
		Default: LevelNotify,
	})

	m.Update("publishing", "pinterest", RuleSet{
		Default: LevelNotify,
	})
}
