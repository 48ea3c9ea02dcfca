// ABOUTME: routeConditionOutput picks exactly one of condtrue/condfalse from a condition
// ABOUTME: handler's boolean verdict; a condition firing never feeds both branches.
package engine

import "github.com/dipeo/dipeo-engine/domain"

// routeConditionOutput converts a condition handler's boolean verdict
// (carried in out["default"]) into the single branch port it actually
// fires on. Condition nodes never emit on both condtrue and condfalse in
// the same firing.
func routeConditionOutput(out map[string]domain.Envelope) map[string]domain.Envelope {
	verdictEnv, ok := out["default"]
	if !ok {
		return out
	}
	verdict, _ := verdictEnv.Body.(bool)

	port := domain.HandleLabelCondFalse
	if verdict {
		port = domain.HandleLabelCondTrue
	}
	return map[string]domain.Envelope{port: verdictEnv}
}
