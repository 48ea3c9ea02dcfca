// ABOUTME: Token is the unit of readiness placed on an edge: an envelope tagged with the
// ABOUTME: epoch it was emitted in. Manager owns per-edge token queues; handlers never see tokens.
package token

import "github.com/dipeo/dipeo-engine/domain"

// Token is an envelope queued on one edge, tagged with the epoch it was
// emitted in.
type Token struct {
	Envelope domain.Envelope
	Epoch    int
}
