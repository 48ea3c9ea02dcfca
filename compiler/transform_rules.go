// ABOUTME: Compile-time transformation rule plans — typed tags with serializable parameters, no closures.
// ABOUTME: Phase 3 (TRANSFORMATION_RULES) computes the ordered rule list for each edge.
package compiler

import (
	"strings"

	"github.com/dipeo/dipeo-engine/domain"
)

// RuleName identifies a built-in transformation rule. Custom rules
// registered at runtime (resolve.Registry) use their own string names.
type RuleName string

const (
	RuleVariableExtract    RuleName = "variable_extract"
	RuleFormatString       RuleName = "format_string"
	RuleContentTypeConvert RuleName = "content_type_convert"
	RuleExtractToolResults RuleName = "extract_tool_results"
	RuleBranchOnCondition  RuleName = "branch_on_condition"
)

// TransformRule is a serializable, parameterized reference to a pure
// transform function applied at runtime by the resolve package. No
// closures are stored here — only typed tags and plain-data parameters,
// so a TransformRule is serializable and safe to share across runs. (The
// Params map means TransformRule values cannot be compared with ==.)
type TransformRule struct {
	Name   RuleName
	Params map[string]any
}

// resolveTransformRules computes the ordered rule list for one arrow. The
// default is a single content_type_convert rule when the arrow declares
// content_type=object; variable_extract is appended when the arrow's Data
// names a "extract" key path; format_string when it names a "format"
// template.
func resolveTransformRules(arrow domain.DomainArrow) []TransformRule {
	var rules []TransformRule

	if arrow.ContentType == domain.ContentTypeObject {
		rules = append(rules, TransformRule{Name: RuleContentTypeConvert})
	}

	if arrow.Data != nil {
		if path, ok := arrow.Data["extract"].(string); ok && strings.TrimSpace(path) != "" {
			rules = append(rules, TransformRule{
				Name:   RuleVariableExtract,
				Params: map[string]any{"path": path},
			})
		}
		if tpl, ok := arrow.Data["format"].(string); ok && strings.TrimSpace(tpl) != "" {
			rules = append(rules, TransformRule{
				Name:   RuleFormatString,
				Params: map[string]any{"template": tpl},
			})
		}
		if extract, ok := arrow.Data["extract_tool_results"].(bool); ok && extract {
			rules = append(rules, TransformRule{Name: RuleExtractToolResults})
		}
	}

	return rules
}
