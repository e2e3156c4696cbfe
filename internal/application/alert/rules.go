package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

// Rule routes matching alerts to an operator group. Condition is a govaluate
// boolean expression over kind, severity, entityType, entityId and the
// payload. Nested payload fields are addressed with brackets, e.g.
// [payload.amount] > 10000.
type Rule struct {
	Name      string `yaml:"name" json:"name"`
	Condition string `yaml:"condition" json:"condition"`
	Group     string `yaml:"group" json:"group"`
}

// DefaultRules sends invoice failures to finance.
func DefaultRules() []Rule {
	return []Rule{{
		Name:      "invoice-failures-to-finance",
		Condition: "kind == 'INVOICE_ISSUANCE_FAILED'",
		Group:     "finance",
	}}
}

type compiledRule struct {
	Rule
	expr *govaluate.EvaluableExpression
}

// Router picks the target group for an alert. The first matching rule wins.
type Router struct {
	rules []compiledRule
}

// NewRouter compiles rules. An empty condition always matches.
func NewRouter(rules []Rule) (*Router, error) {
	r := &Router{}
	for _, rule := range rules {
		if strings.TrimSpace(rule.Group) == "" {
			return nil, fmt.Errorf("alert rule %q has no group", rule.Name)
		}
		cr := compiledRule{Rule: rule}
		cond := strings.TrimSpace(rule.Condition)
		if cond != "" && !isLiteral(cond) {
			expr, err := govaluate.NewEvaluableExpression(cond)
			if err != nil {
				return nil, fmt.Errorf("alert rule %q: %w", rule.Name, err)
			}
			cr.expr = expr
		}
		r.rules = append(r.rules, cr)
	}
	return r, nil
}

// Route returns the group of the first rule matching contextJSON, or "" when
// none matches. Rules that fail to evaluate are reported in errs and skipped.
func (r *Router) Route(contextJSON json.RawMessage) (group string, errs []error) {
	if r == nil {
		return "", nil
	}
	params := buildContextParams(contextJSON)
	for _, rule := range r.rules {
		ok, err := rule.matches(params)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert rule %q: %w", rule.Name, err))
			continue
		}
		if ok {
			return rule.Group, errs
		}
	}
	return "", errs
}

func (c compiledRule) matches(params map[string]interface{}) (bool, error) {
	cond := strings.ToLower(strings.TrimSpace(c.Condition))
	switch {
	case cond == "" || cond == "true":
		return true, nil
	case cond == "false":
		return false, nil
	}
	result, err := c.expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("condition did not evaluate to boolean")
	}
	return v, nil
}

func isLiteral(cond string) bool {
	switch strings.ToLower(cond) {
	case "true", "false":
		return true
	}
	return false
}

func buildContextParams(contextJSON json.RawMessage) map[string]interface{} {
	params := map[string]interface{}{}
	if len(contextJSON) == 0 {
		return params
	}
	var raw interface{}
	if err := json.Unmarshal(contextJSON, &raw); err != nil {
		return params
	}
	if m, ok := raw.(map[string]interface{}); ok {
		for k, v := range m {
			params[k] = v
		}
		flattenContext("", m, params)
	}
	return params
}

func flattenContext(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flattenContext(key, vv, out)
		default:
			out[key] = vv
		}
	}
}
