package manifest

import "testing"

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestRuleEvaluateOSDeny(t *testing.T) {
	// Scenario 3: Rule {action:"allow", os:{name:"osx"}} on a linux host
	// evaluates to false.
	rule := Rule{Action: "allow", OS: &OsRule{Name: strPtr("osx")}}
	host := HostProfile{OSName: "linux", Arch: "x86_64"}

	if rule.Evaluate(host) {
		t.Fatal("expected rule to evaluate false on mismatched OS name")
	}
}

func TestRuleEvaluateDefaultAllow(t *testing.T) {
	rule := Rule{Action: "allow"}
	host := HostProfile{OSName: "linux"}
	if !rule.Evaluate(host) {
		t.Fatal("expected unconditional allow rule to admit")
	}
}

func TestRuleEvaluateDisallowInverts(t *testing.T) {
	rule := Rule{Action: "disallow", OS: &OsRule{Name: strPtr("linux")}}
	host := HostProfile{OSName: "linux"}
	// action==disallow -> default false; os.name matches -> no invert -> false
	if rule.Evaluate(host) {
		t.Fatal("expected matching disallow rule to evaluate false")
	}

	host2 := HostProfile{OSName: "windows"}
	// os.name mismatches -> invert default(false) -> true
	if !rule.Evaluate(host2) {
		t.Fatal("expected mismatched disallow rule to invert to true")
	}
}

func TestRuleEvaluateArchNormalization(t *testing.T) {
	rule := Rule{Action: "allow", OS: &OsRule{Arch: strPtr("x86_64")}}
	host := HostProfile{Arch: "amd64"}
	if !rule.Evaluate(host) {
		t.Fatal("expected amd64 to normalize to x86_64 and match")
	}
}

func TestRuleEvaluateFeatures(t *testing.T) {
	rule := Rule{Action: "allow", Features: &FeatureRule{IsDemoUser: boolPtr(true)}}
	if rule.Evaluate(HostProfile{IsDemoUser: false}) {
		t.Fatal("expected feature mismatch to invert")
	}
	if !rule.Evaluate(HostProfile{IsDemoUser: true}) {
		t.Fatal("expected feature match to admit")
	}
}

func TestRuleEvaluateOrderIndependence(t *testing.T) {
	// Permuting irrelevant sub-matchers must not change the result.
	a := Rule{Action: "allow", OS: &OsRule{Name: strPtr("linux"), Arch: strPtr("x86_64")}}
	b := Rule{Action: "allow", OS: &OsRule{Arch: strPtr("x86_64"), Name: strPtr("linux")}}
	host := HostProfile{OSName: "linux", Arch: "x86_64"}

	if a.Evaluate(host) != b.Evaluate(host) {
		t.Fatal("field order must not affect evaluation")
	}
}

func TestRuleEvaluatorAdmitsEmptyRules(t *testing.T) {
	e := NewRuleEvaluator(HostProfile{OSName: "linux"})
	if !e.Admits(nil) {
		t.Fatal("a library/argument with no rules must be admitted")
	}
}

func TestRuleEvaluatorRequiresAllRules(t *testing.T) {
	e := NewRuleEvaluator(HostProfile{OSName: "linux"})
	rules := []Rule{
		{Action: "allow"},
		{Action: "allow", OS: &OsRule{Name: strPtr("osx")}},
	}
	if e.Admits(rules) {
		t.Fatal("expected admission to fail when any rule evaluates false")
	}
}
