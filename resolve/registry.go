// ABOUTME: Registry maps a TransformRule name to its pure implementation function.
// ABOUTME: Freeze prevents further registration once the engine has started an execution.
package resolve

import (
	"fmt"

	"github.com/dipeo/dipeo-engine/compiler"
)

// RuleFunc is a pure transform: given a value and the rule's compile-time
// parameters, it returns the transformed value or an error. Transform
// errors are non-fatal (see Resolver.Resolve): the error is logged and the
// untransformed value flows on.
type RuleFunc func(value any, params map[string]any) (any, error)

// Registry holds named rule implementations. Plugins register custom rules
// by name before the registry is frozen; after Freeze, Register panics so a
// running execution can never have its rule set mutated under it.
type Registry struct {
	rules  map[compiler.RuleName]RuleFunc
	frozen bool
}

// NewRegistry creates a registry pre-populated with the five built-in rules.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[compiler.RuleName]RuleFunc)}
	r.Register(compiler.RuleVariableExtract, ruleVariableExtract)
	r.Register(compiler.RuleFormatString, ruleFormatString)
	r.Register(compiler.RuleContentTypeConvert, ruleContentTypeConvert)
	r.Register(compiler.RuleExtractToolResults, ruleExtractToolResults)
	r.Register(compiler.RuleBranchOnCondition, ruleBranchOnCondition)
	return r
}

// Register adds or replaces a rule implementation. Panics if the registry
// has been frozen.
func (r *Registry) Register(name compiler.RuleName, fn RuleFunc) {
	if r.frozen {
		panic(fmt.Sprintf("resolve: cannot register rule %q on a frozen registry", name))
	}
	r.rules[name] = fn
}

// Freeze prevents further registration. Idempotent.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the implementation for name, or false if unregistered.
func (r *Registry) Lookup(name compiler.RuleName) (RuleFunc, bool) {
	fn, ok := r.rules[name]
	return fn, ok
}
