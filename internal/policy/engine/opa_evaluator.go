package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const alertQuery = "data.resume.session_alerts.decision"

// DefaultAlertPolicy notifies when flagged sessions span more than one country and raises the
// severity to high beyond two.
const DefaultAlertPolicy = `package resume.session_alerts

default notify = false

default severity = "none"

distinct_countries := count({c | some c in input.countries})

notify if distinct_countries > 1

severity = "high" if distinct_countries > 2

severity = "medium" if distinct_countries == 2

decision := {"notify": notify, "severity": severity}
`

// OPAEvaluator evaluates the session alert policy with OPA Rego.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

// NewOPAEvaluator compiles modules (DefaultAlertPolicy when none are given) and prepares the decision query.
// Custom modules must define data.resume.session_alerts.decision.
func NewOPAEvaluator(ctx context.Context, log *zap.Logger, modules ...string) (*OPAEvaluator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(modules) == 0 {
		modules = []string{DefaultAlertPolicy}
	}
	files := make(map[string]string, len(modules))
	for i, m := range modules {
		files[fmt.Sprintf("policy_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(files)
	if err != nil {
		return nil, fmt.Errorf("compile alert policy: %w", err)
	}
	pq, err := rego.New(rego.Query(alertQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare alert policy: %w", err)
	}
	return &OPAEvaluator{query: pq, log: log.Named("policy")}, nil
}

// HealthCheck evaluates the prepared policy against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, AlertInput{Countries: []string{}})
	return err
}

// EvaluateAlert evaluates the policy for in. When evaluation fails it logs and falls back to
// notifying on more than one distinct country, so alerts are not lost to a policy bug.
func (e *OPAEvaluator) EvaluateAlert(ctx context.Context, in AlertInput) (AlertDecision, error) {
	d, err := e.eval(ctx, in)
	if err != nil {
		e.log.Warn("alert policy evaluation failed, using fallback", zap.String("user_id", in.UserID), zap.Error(err))
		return FallbackDecision(in), nil
	}
	return d, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in AlertInput) (AlertDecision, error) {
	countries := in.Countries
	if countries == nil {
		countries = []string{}
	}
	input := map[string]interface{}{
		"user_id":       in.UserID,
		"trigger":       in.Trigger,
		"window_hours":  in.WindowHours,
		"session_count": in.SessionCount,
		"countries":     countries,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return AlertDecision{}, fmt.Errorf("eval alert policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return AlertDecision{}, fmt.Errorf("alert policy returned no result")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return AlertDecision{}, fmt.Errorf("alert policy returned %T, want object", rs[0].Expressions[0].Value)
	}
	d := AlertDecision{Severity: SeverityNone}
	if v, ok := obj["notify"].(bool); ok {
		d.Notify = v
	}
	if v, ok := obj["severity"].(string); ok && v != "" {
		d.Severity = v
	}
	return d, nil
}

// FallbackDecision mirrors DefaultAlertPolicy without OPA.
func FallbackDecision(in AlertInput) AlertDecision {
	n := len(DistinctCountries(in.Countries))
	switch {
	case n > 2:
		return AlertDecision{Notify: true, Severity: SeverityHigh}
	case n == 2:
		return AlertDecision{Notify: true, Severity: SeverityMedium}
	default:
		return AlertDecision{Severity: SeverityNone}
	}
}

// DistinctCountries returns the sorted set of non-empty country codes.
func DistinctCountries(countries []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, c := range countries {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

var _ AlertEvaluator = (*OPAEvaluator)(nil)
