// ABOUTME: NODE_FACTORY phase — the single conversion boundary from untyped DomainNode.Data
// ABOUTME: dictionaries to typed per-NodeType configuration structs, with defaults and required-field checks.
package compiler

import (
	"fmt"

	"github.com/dipeo/dipeo-engine/domain"
)

// NodeConfig is the typed configuration materialized for one node. Each
// NodeType's concrete config is a distinct Go type satisfying this marker
// interface, resolved once at compile time so handlers never touch the
// raw DomainNode.Data map.
type NodeConfig interface {
	nodeConfigSeal()
}

// StartConfig configures a START node. No fields: start nodes only seed
// tokens on their outbound edges.
type StartConfig struct{}

func (StartConfig) nodeConfigSeal() {}

// EndpointConfig configures an ENDPOINT node.
type EndpointConfig struct{}

func (EndpointConfig) nodeConfigSeal() {}

// ConditionType names how a CONDITION node decides its branch.
type ConditionType string

const (
	ConditionDetectMaxIterations ConditionType = "DETECT_MAX_ITERATIONS"
	ConditionCheckNodesExecuted  ConditionType = "CHECK_NODES_EXECUTED"
	ConditionCustom              ConditionType = "CUSTOM"
)

// ConditionConfig configures a CONDITION node.
type ConditionConfig struct {
	ConditionType ConditionType
	MaxIterations int             // for DETECT_MAX_ITERATIONS
	WatchNodes    []domain.NodeID // for CHECK_NODES_EXECUTED
	Expression    string          // for CUSTOM
}

func (ConditionConfig) nodeConfigSeal() {}

// CodeJobConfig configures a CODE_JOB node.
type CodeJobConfig struct {
	Language string
	Code     string
}

func (CodeJobConfig) nodeConfigSeal() {}

// ShellJobConfig configures a SHELL_JOB node.
type ShellJobConfig struct {
	Command string
	Timeout int // seconds
}

func (ShellJobConfig) nodeConfigSeal() {}

// ApiJobConfig configures an API_JOB node.
type ApiJobConfig struct {
	URL     string
	Method  string
	Headers map[string]string
}

func (ApiJobConfig) nodeConfigSeal() {}

// PersonJobConfig configures a PERSON_JOB node.
type PersonJobConfig struct {
	PersonID     domain.PersonID
	Prompt       string
	MaxIteration int
	Tools        []string
}

func (PersonJobConfig) nodeConfigSeal() {}

// DBReadConfig configures a DB_READ node.
type DBReadConfig struct {
	Query string
}

func (DBReadConfig) nodeConfigSeal() {}

// TemplateConfig configures a TEMPLATE node.
type TemplateConfig struct {
	Template string
}

func (TemplateConfig) nodeConfigSeal() {}

// SubdiagramConfig configures a SUBDIAGRAM node.
type SubdiagramConfig struct {
	DiagramID domain.DiagramID
}

func (SubdiagramConfig) nodeConfigSeal() {}

// HookConfig configures a HOOK node.
type HookConfig struct {
	HookName string
}

func (HookConfig) nodeConfigSeal() {}

// defaultJoinPolicies is the type-level join-policy default table. A node
// may override via an explicit "join_policy" key in DomainNode.Data.
var defaultJoinPolicies = map[domain.NodeType]JoinPolicy{
	domain.NodeTypeStart:      JoinAll,
	domain.NodeTypeEndpoint:   JoinAny,
	domain.NodeTypeCondition:  JoinAll,
	domain.NodeTypeCodeJob:    JoinAll,
	domain.NodeTypeShellJob:   JoinAll,
	domain.NodeTypeApiJob:     JoinAll,
	domain.NodeTypePersonJob:  JoinFirstOnly,
	domain.NodeTypeDBRead:     JoinAll,
	domain.NodeTypeTemplate:   JoinAll,
	domain.NodeTypeSubdiagram: JoinAll,
	domain.NodeTypeHook:       JoinAny,
}

// resolveJoinPolicy picks the node's join policy: explicit override from
// DomainNode.Data["join_policy"], else the type-level default.
func resolveJoinPolicy(node domain.DomainNode) JoinPolicy {
	if node.Data != nil {
		if raw, ok := node.Data["join_policy"].(string); ok && raw != "" {
			return JoinPolicy(raw)
		}
	}
	if jp, ok := defaultJoinPolicies[node.Type]; ok {
		return jp
	}
	return JoinAll
}

// buildNodeConfig converts one node's opaque Data dictionary into its typed
// configuration, applying defaults and validating required fields.
func buildNodeConfig(node domain.DomainNode) (NodeConfig, error) {
	data := node.Data
	switch node.Type {
	case domain.NodeTypeStart:
		return StartConfig{}, nil
	case domain.NodeTypeEndpoint:
		return EndpointConfig{}, nil
	case domain.NodeTypeCondition:
		return buildConditionConfig(data)
	case domain.NodeTypeCodeJob:
		lang, _ := data["language"].(string)
		code, _ := data["code"].(string)
		if code == "" {
			return nil, fmt.Errorf("CODE_JOB node %q missing required field %q", node.ID, "code")
		}
		if lang == "" {
			lang = "python"
		}
		return CodeJobConfig{Language: lang, Code: code}, nil
	case domain.NodeTypeShellJob:
		cmd, _ := data["command"].(string)
		if cmd == "" {
			return nil, fmt.Errorf("SHELL_JOB node %q missing required field %q", node.ID, "command")
		}
		timeout := 30
		if t, ok := data["timeout"].(int); ok && t > 0 {
			timeout = t
		}
		return ShellJobConfig{Command: cmd, Timeout: timeout}, nil
	case domain.NodeTypeApiJob:
		url, _ := data["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("API_JOB node %q missing required field %q", node.ID, "url")
		}
		method, _ := data["method"].(string)
		if method == "" {
			method = "GET"
		}
		headers, _ := data["headers"].(map[string]string)
		return ApiJobConfig{URL: url, Method: method, Headers: headers}, nil
	case domain.NodeTypePersonJob:
		personID, _ := data["person_id"].(string)
		if personID == "" {
			return nil, fmt.Errorf("PERSON_JOB node %q missing required field %q", node.ID, "person_id")
		}
		prompt, _ := data["prompt"].(string)
		maxIter := 1
		if m, ok := data["max_iteration"].(int); ok && m > 0 {
			maxIter = m
		}
		var tools []string
		if t, ok := data["tools"].([]string); ok {
			tools = t
		}
		return PersonJobConfig{PersonID: domain.PersonID(personID), Prompt: prompt, MaxIteration: maxIter, Tools: tools}, nil
	case domain.NodeTypeDBRead:
		query, _ := data["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("DB_READ node %q missing required field %q", node.ID, "query")
		}
		return DBReadConfig{Query: query}, nil
	case domain.NodeTypeTemplate:
		tpl, _ := data["template"].(string)
		if tpl == "" {
			return nil, fmt.Errorf("TEMPLATE node %q missing required field %q", node.ID, "template")
		}
		return TemplateConfig{Template: tpl}, nil
	case domain.NodeTypeSubdiagram:
		diagID, _ := data["diagram_id"].(string)
		if diagID == "" {
			return nil, fmt.Errorf("SUBDIAGRAM node %q missing required field %q", node.ID, "diagram_id")
		}
		return SubdiagramConfig{DiagramID: domain.DiagramID(diagID)}, nil
	case domain.NodeTypeHook:
		name, _ := data["hook_name"].(string)
		if name == "" {
			return nil, fmt.Errorf("HOOK node %q missing required field %q", node.ID, "hook_name")
		}
		return HookConfig{HookName: name}, nil
	default:
		return nil, fmt.Errorf("node %q has unknown node type %q", node.ID, node.Type)
	}
}

func buildConditionConfig(data map[string]any) (NodeConfig, error) {
	ctRaw, _ := data["condition_type"].(string)
	ct := ConditionType(ctRaw)
	if ct == "" {
		ct = ConditionCustom
	}

	cfg := ConditionConfig{ConditionType: ct}
	switch ct {
	case ConditionDetectMaxIterations:
		if m, ok := data["max_iterations"].(int); ok {
			cfg.MaxIterations = m
		} else {
			return nil, fmt.Errorf("CONDITION node with condition_type=%s missing required field %q", ct, "max_iterations")
		}
	case ConditionCheckNodesExecuted:
		if ids, ok := data["watch_nodes"].([]string); ok {
			for _, id := range ids {
				cfg.WatchNodes = append(cfg.WatchNodes, domain.NodeID(id))
			}
		} else {
			return nil, fmt.Errorf("CONDITION node with condition_type=%s missing required field %q", ct, "watch_nodes")
		}
	case ConditionCustom:
		expr, _ := data["expression"].(string)
		if expr == "" {
			return nil, fmt.Errorf("CONDITION node with condition_type=CUSTOM missing required field %q", "expression")
		}
		cfg.Expression = expr
	default:
		return nil, fmt.Errorf("unknown condition_type %q", ct)
	}
	return cfg, nil
}
