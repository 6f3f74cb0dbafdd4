// Package manifest resolves the Mojang version-manifest -> version-instance
// -> asset-index -> library-list JSON chain into a concrete set of platform-
// filtered download tasks. Rule evaluation and native-classifier selection
// are ported from the Rust original's host-facing Rule.check_rule
// (original_source/mc_launcher_core/src/deserialize.rs), redesigned from a
// late-bound closure into eager evaluation against a HostProfile captured at
// resolver-construction time.
package manifest

import "strings"

// HostProfile is the tuple a Rule is evaluated against: the current host's
// OS name, architecture, OS version, and feature flags.
type HostProfile struct {
	OSName           string // "windows", "linux", "osx"
	Arch             string // normalized to {x86, x86_64, arm, arm64}
	OSVersion        string
	IsDemoUser       bool
	HasCustomResAttr bool // has_custom_resolution
}

// OsRule matches a subset of the host's OS triple. Each field is optional;
// an unset field never causes a mismatch.
type OsRule struct {
	Name    *string `json:"name,omitempty"`
	Arch    *string `json:"arch,omitempty"`
	Version *string `json:"version,omitempty"`
}

// FeatureRule matches a subset of the host's feature flags.
type FeatureRule struct {
	IsDemoUser          *bool `json:"is_demo_user,omitempty"`
	HasCustomResolution *bool `json:"has_custom_resolution,omitempty"`
}

// Rule is one allow/disallow gate evaluated against a HostProfile, per
// spec.md §4.3.
type Rule struct {
	Action   string       `json:"action"` // "allow" | "disallow"
	OS       *OsRule      `json:"os,omitempty"`
	Features *FeatureRule `json:"features,omitempty"`
}

// Evaluate applies spec.md §4.3's semantics: default equals action==allow,
// then any mismatched sub-matcher inverts the result. Totality and
// determinism are required — every branch returns, no matcher can panic.
func (r Rule) Evaluate(host HostProfile) bool {
	allow := r.Action == "allow"
	result := allow

	if r.OS != nil {
		if r.OS.Arch != nil && normalizeArch(*r.OS.Arch) != normalizeArch(host.Arch) {
			result = !allow
		}
		if r.OS.Name != nil && *r.OS.Name != host.OSName {
			result = !allow
		}
		if r.OS.Version != nil && !strings.Contains(host.OSVersion, *r.OS.Version) {
			result = !allow
		}
	}

	if r.Features != nil {
		if r.Features.IsDemoUser != nil && *r.Features.IsDemoUser != host.IsDemoUser {
			result = !allow
		}
		if r.Features.HasCustomResolution != nil && *r.Features.HasCustomResolution != host.HasCustomResAttr {
			result = !allow
		}
	}

	return result
}

// normalizeArch maps raw arch strings to the canonical set spec.md §4.3
// names: {x86, x86_64, arm, arm64}.
func normalizeArch(arch string) string {
	switch arch {
	case "386", "x86", "i386", "i686":
		return "x86"
	case "amd64", "x86_64", "x64":
		return "x86_64"
	case "arm", "armv7", "armv7l":
		return "arm"
	case "arm64", "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// RuleEvaluator bundles a HostProfile for evaluating lists of rules against
// admission of a library or argument (spec.md §4.3: "admitted iff every
// Rule in its rule list evaluates to true; no rules means admitted").
type RuleEvaluator struct {
	Host HostProfile
}

func NewRuleEvaluator(host HostProfile) RuleEvaluator {
	return RuleEvaluator{Host: host}
}

// Admits reports whether every rule in rules evaluates to true against the
// evaluator's host. An empty rule list is always admitted.
func (e RuleEvaluator) Admits(rules []Rule) bool {
	for _, r := range rules {
		if !r.Evaluate(e.Host) {
			return false
		}
	}
	return true
}

// DefaultHostProfile builds a HostProfile from the running process's GOOS/
// GOARCH, matching the Rust original's cfg!(linux)/cfg!(windows)/cfg!(macos)
// compile-time dispatch with a runtime equivalent.
func DefaultHostProfile(goos, goarch, osVersion string) HostProfile {
	var name string
	switch goos {
	case "windows":
		name = "windows"
	case "darwin":
		name = "osx"
	default:
		name = "linux"
	}
	return HostProfile{OSName: name, Arch: goarch, OSVersion: osVersion}
}
