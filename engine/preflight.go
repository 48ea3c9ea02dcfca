// ABOUTME: Preflight checks run once before the scheduler's first dispatch, failing fast
// ABOUTME: on missing collaborators instead of surfacing them mid-run.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/ports"
)

// PreflightCheck is one named validation run before execution begins.
type PreflightCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// PreflightFailure records one failed check.
type PreflightFailure struct {
	Name   string
	Reason string
}

// PreflightResult aggregates every check's outcome.
type PreflightResult struct {
	Passed []string
	Failed []PreflightFailure
}

// OK reports whether every check passed.
func (r PreflightResult) OK() bool { return len(r.Failed) == 0 }

// Error formats every failure as a multi-line message, or "" if OK.
func (r PreflightResult) Error() string {
	if r.OK() {
		return ""
	}
	lines := make([]string, 0, len(r.Failed)+1)
	lines = append(lines, fmt.Sprintf("preflight: %d check(s) failed:", len(r.Failed)))
	for _, f := range r.Failed {
		lines = append(lines, fmt.Sprintf("  - %s: %s", f.Name, f.Reason))
	}
	return strings.Join(lines, "\n")
}

// RunPreflight runs every check, regardless of earlier failures, so the
// caller sees the complete picture of what is missing.
func RunPreflight(ctx context.Context, checks []PreflightCheck) PreflightResult {
	var result PreflightResult
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			result.Failed = append(result.Failed, PreflightFailure{Name: c.Name, Reason: err.Error()})
		} else {
			result.Passed = append(result.Passed, c.Name)
		}
	}
	return result
}

// BuildPreflightChecks derives the checks appropriate for diag: every
// PERSON_JOB's person must exist in persons and its api key must resolve
// through keys. Other node types get no checks. Missing collaborators fail fast here instead of
// surfacing mid-run as a generic HANDLER_FAILED.
func BuildPreflightChecks(diag *compiler.ExecutableDiagram, keys ports.APIKeyStore, persons map[domain.PersonID]domain.DomainPerson) []PreflightCheck {
	var checks []PreflightCheck
	seen := make(map[domain.ApiKeyID]bool)

	for id, node := range diag.Nodes {
		if node.Type != domain.NodeTypePersonJob {
			continue
		}
		cfg, ok := node.Config.(compiler.PersonJobConfig)
		if !ok {
			continue
		}
		person, ok := persons[cfg.PersonID]
		if !ok {
			nodeID := id
			checks = append(checks, PreflightCheck{
				Name: fmt.Sprintf("person:%s", nodeID),
				Check: func(ctx context.Context) error {
					return fmt.Errorf("node %q references unknown person %q", nodeID, cfg.PersonID)
				},
			})
			continue
		}
		if person.ApiKeyID == "" || seen[person.ApiKeyID] {
			continue
		}
		seen[person.ApiKeyID] = true
		keyID := person.ApiKeyID
		checks = append(checks, PreflightCheck{
			Name: fmt.Sprintf("apikey:%s", keyID),
			Check: func(ctx context.Context) error {
				if keys == nil {
					return fmt.Errorf("no APIKeyStore configured but a PERSON_JOB node needs key %q", keyID)
				}
				_, err := keys.Resolve(ctx, keyID)
				return err
			},
		})
	}

	return checks
}
