// Package lint checks slipway.yaml for pipeline wiring mistakes that
// parsing alone cannot catch: triggers that fire on the wrong deliveries,
// hardcoded runtime versions, publish sources outside the build output,
// and static credentials in the file.
package lint

import (
	"fmt"

	"github.com/slipway-ci/slipway/pkg/config"
)

// Severity classifies a finding. Errors make `slipway lint` exit
// non-zero; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule codes, one per check.
const (
	RuleTriggerEvent   = "SLW001"
	RuleTriggerFilter  = "SLW002"
	RuleRuntimeVersion = "SLW003"
	RulePublishSource  = "SLW004"
	RuleCredentials    = "SLW005"
	RuleWebhookSecret  = "SLW006"
)

// Problem is a single finding.
type Problem struct {
	Rule     string
	Severity Severity
	Field    string
	Message  string
}

func (p Problem) String() string {
	if p.Field == "" {
		return fmt.Sprintf("%s %s: %s", p.Rule, p.Severity, p.Message)
	}
	return fmt.Sprintf("%s %s %s: %s", p.Rule, p.Severity, p.Field, p.Message)
}

// Report collects the findings of one run over a config document.
type Report struct {
	Problems []Problem
}

// HasErrors reports whether any finding is error severity.
func (r *Report) HasErrors() bool {
	for _, p := range r.Problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Rules returns the distinct rule codes present in the report.
func (r *Report) Rules() []string {
	var rules []string
	seen := map[string]bool{}
	for _, p := range r.Problems {
		if !seen[p.Rule] {
			seen[p.Rule] = true
			rules = append(rules, p.Rule)
		}
	}
	return rules
}

func (r *Report) add(rule string, severity Severity, field, format string, v ...interface{}) {
	r.Problems = append(r.Problems, Problem{
		Rule:     rule,
		Severity: severity,
		Field:    field,
		Message:  fmt.Sprintf(format, v...),
	})
}

// Check runs every rule over the raw config document, the file as
// written with no defaults applied. Working on the raw document lets
// lint report findings the loader would reject outright, such as a
// pinned runtime version.
func Check(doc map[string]interface{}) *Report {
	report := &Report{}
	checkTriggerEvent(doc, report)
	checkTriggerFilter(doc, report)
	checkRuntimeVersion(doc, report)
	checkPublishSource(doc, report)
	checkCredentials(doc, report)
	checkWebhookSecret(doc, report)
	return report
}

// CheckProject locates the project's slipway.yaml, loads the raw
// document and runs Check. projectDir overrides the default upward
// search from the working directory.
func CheckProject(projectDir string) (*Report, string, error) {
	doc, rootDir, err := config.GetRawConfig(projectDir)
	if err != nil {
		return nil, "", err
	}
	return Check(doc), rootDir, nil
}
