// ABOUTME: DomainPerson is an LLM-participant configuration referenced by PersonJob nodes.
package domain

// DomainPerson configures one LLM participant: which model/service to call
// and under what persona.
type DomainPerson struct {
	ID           PersonID
	Model        string
	Service      string
	ApiKeyID     ApiKeyID
	SystemPrompt string
}
