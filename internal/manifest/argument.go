package manifest

import (
	"bytes"
	"encoding/json"

	"mc-launcher-engine/internal/apperr"
)

// Argument models the three-shape union confirmed by the Rust original's
// Argument deserializer (instance/deserialize_return_closure.rs /
// instance/deserialize.rs): a bare string, an array of strings, or
// {rules, value} where value recurses into the same union. The rules-gated
// form is resolved eagerly here (spec.md §9 "Function-valued lazy
// libraries") rather than carried as a closure.
type Argument struct {
	values        []string // unconditional value(s)
	pendingRules  []Rule   // non-nil iff this argument is rule-gated
	pendingValues []string
}

// UnmarshalJSON peeks the raw JSON token to choose the variant, per
// spec.md §9's design note.
func (a *Argument) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return apperr.Wrap(apperr.Parse, "manifest.Argument.UnmarshalJSON", err)
		}
		a.values = []string{s}
		return nil

	case '[':
		var ss []string
		if err := json.Unmarshal(trimmed, &ss); err != nil {
			return apperr.Wrap(apperr.Parse, "manifest.Argument.UnmarshalJSON", err)
		}
		a.values = ss
		return nil

	case '{':
		var raw struct {
			Rules []Rule          `json:"rules"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return apperr.Wrap(apperr.Parse, "manifest.Argument.UnmarshalJSON", err)
		}

		var values []string
		if len(raw.Value) > 0 {
			valTrimmed := bytes.TrimSpace(raw.Value)
			if len(valTrimmed) > 0 && valTrimmed[0] == '[' {
				if err := json.Unmarshal(valTrimmed, &values); err != nil {
					return apperr.Wrap(apperr.Parse, "manifest.Argument.UnmarshalJSON", err)
				}
			} else if len(valTrimmed) > 0 {
				var one string
				if err := json.Unmarshal(valTrimmed, &one); err != nil {
					return apperr.Wrap(apperr.Parse, "manifest.Argument.UnmarshalJSON", err)
				}
				values = []string{one}
			}
		}

		if len(raw.Rules) == 0 {
			a.values = values
			return nil
		}
		a.pendingRules = raw.Rules
		a.pendingValues = values
		return nil

	default:
		return apperr.New(apperr.Parse, "manifest.Argument.UnmarshalJSON", "unrecognized argument shape")
	}
}

// Resolve flattens the argument against host into zero or more flat launch
// argument strings: rejected conditional arguments resolve to nothing, per
// spec.md §3 "after resolution it is a flat sequence of strings (rejected
// arguments become empty)".
func (a Argument) Resolve(evaluator RuleEvaluator) []string {
	if a.pendingRules != nil {
		if !evaluator.Admits(a.pendingRules) {
			return nil
		}
		return a.pendingValues
	}
	return a.values
}

// LaunchArguments holds the game and jvm argument lists from a version
// instance (spec.md §3 "Argument").
type LaunchArguments struct {
	Game []Argument `json:"game"`
	JVM  []Argument `json:"jvm"`
}

// ResolveGame flattens Game against host into a plain argument slice.
func (la LaunchArguments) ResolveGame(evaluator RuleEvaluator) []string {
	return resolveAll(la.Game, evaluator)
}

// ResolveJVM flattens JVM against host into a plain argument slice.
func (la LaunchArguments) ResolveJVM(evaluator RuleEvaluator) []string {
	return resolveAll(la.JVM, evaluator)
}

func resolveAll(args []Argument, evaluator RuleEvaluator) []string {
	var out []string
	for _, a := range args {
		out = append(out, a.Resolve(evaluator)...)
	}
	return out
}
