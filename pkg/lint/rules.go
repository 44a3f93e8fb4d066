package lint

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/match"
)

// checkTriggerEvent enforces that the pipeline activates on release
// deliveries only. An absent trigger.event defaults to "release" at load
// time, so only an explicit override can break this.
func checkTriggerEvent(doc map[string]interface{}, report *Report) {
	trigger := section(doc, "trigger")
	raw, ok := trigger["event"]
	if !ok {
		return
	}
	event, ok := raw.(string)
	if !ok {
		report.add(RuleTriggerEvent, SeverityError, "trigger.event", "%v is not an event name", raw)
		return
	}
	if event != config.DefaultTriggerEvent {
		report.add(RuleTriggerEvent, SeverityError, "trigger.event",
			"pipeline triggers on %q; publishing must only run on release deliveries", event)
	}
}

// probeActions are the release delivery actions a forge sends besides
// published. A filter that matches any of their sample payloads would
// activate the pipeline on something that is not a published release.
var probeActions = []string{"created", "deleted", "edited", "prereleased", "released", "unpublished"}

func probeDelivery(action string) map[string]interface{} {
	return map[string]interface{}{
		"action": action,
		"release": map[string]interface{}{
			"tag_name":         "v1.2.3",
			"name":             "v1.2.3",
			"target_commitish": strings.Repeat("0", 40),
			"prerelease":       false,
			"draft":            false,
		},
		"repository": map[string]interface{}{
			"full_name": "acme/widget",
			"clone_url": "https://forge.example/acme/widget.git",
		},
	}
}

// checkTriggerFilter evaluates the filter against sample deliveries. The
// filter must reject every non-published action and accept a published
// one, otherwise the pipeline can fire on draft or deleted releases.
func checkTriggerFilter(doc map[string]interface{}, report *Report) {
	trigger := section(doc, "trigger")
	raw, ok := trigger["filter"]
	if !ok {
		return
	}
	filter, ok := raw.(map[string]interface{})
	if !ok {
		report.add(RuleTriggerFilter, SeverityError, "trigger.filter", "filter must be a query document")
		return
	}
	query := match.NewQuery(filter)
	if err := query.Validate(); err != nil {
		report.add(RuleTriggerFilter, SeverityError, "trigger.filter", "filter is not a valid query: %v", err)
		return
	}

	var leaks []string
	for _, action := range probeActions {
		matched, err := query.Match(probeDelivery(action))
		if err != nil {
			report.add(RuleTriggerFilter, SeverityWarning, "trigger.filter",
				"filter could not be evaluated against a sample delivery: %v", err)
			return
		}
		if matched {
			leaks = append(leaks, action)
		}
	}
	if len(leaks) > 0 {
		report.add(RuleTriggerFilter, SeverityError, "trigger.filter",
			"filter also matches %s deliveries; constrain it to action published", strings.Join(leaks, ", "))
	}

	matched, err := query.Match(probeDelivery(config.DefaultTriggerAction))
	if err == nil && !matched {
		report.add(RuleTriggerFilter, SeverityWarning, "trigger.filter",
			"filter does not match a published release delivery; the pipeline would never run")
	}
}

// checkRuntimeVersion rejects a runtime version pinned in slipway.yaml.
// The version the release builds with must come from project metadata,
// so the file under the released tag is the single source of truth.
func checkRuntimeVersion(doc map[string]interface{}, report *Report) {
	runtime := section(doc, "runtime")
	version, ok := stringField(runtime, "version")
	if !ok || version == "" {
		return
	}
	report.add(RuleRuntimeVersion, SeverityError, "runtime.version",
		"runtime version %q is pinned here; declare it in %s or pyproject.toml instead", version, config.DefaultVersionFile)
}

// checkPublishSource keeps the publish step downstream of the build step:
// the artifact selection glob may only narrow what the build output
// directory contains, never reach outside it.
func checkPublishSource(doc map[string]interface{}, report *Report) {
	publish := section(doc, "publish")
	pattern, ok := stringField(publish, "artifacts")
	if !ok || pattern == "" {
		return
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		report.add(RulePublishSource, SeverityError, "publish.artifacts", "%q is not a valid glob", pattern)
		return
	}

	outDir := config.DefaultOutDir
	if dir, ok := stringField(section(doc, "build"), "out_dir"); ok && dir != "" {
		outDir = dir
	}

	clean := path.Clean(pattern)
	switch {
	case path.IsAbs(clean):
		report.add(RulePublishSource, SeverityError, "publish.artifacts",
			"%q is absolute; published artifacts must come from the build output directory %s", pattern, outDir)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		report.add(RulePublishSource, SeverityError, "publish.artifacts",
			"%q escapes the project; published artifacts must come from the build output directory %s", pattern, outDir)
	case !strings.Contains(clean, "/"):
		// A bare filename pattern selects within the output directory.
	case clean == path.Clean(outDir) || strings.HasPrefix(clean, path.Clean(outDir)+"/"):
	default:
		report.add(RulePublishSource, SeverityError, "publish.artifacts",
			"%q selects files outside the build output directory %s; only built artifacts can be published", pattern, outDir)
	}
}

// credentialPatterns are token shapes that are static credentials no
// matter where they appear.
var credentialPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"an index API token", regexp.MustCompile(`pypi-[A-Za-z0-9_=-]{16,}`)},
	{"a forge personal access token", regexp.MustCompile(`\bghp_[A-Za-z0-9]{20,}\b`)},
	{"a forge fine-grained access token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`)},
	{"a cloud access key ID", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
}

// secretKeyNames flags keys whose value is conventionally a credential.
// Keys ending in _env hold variable names, not values, and are exempt.
var secretKeyNames = regexp.MustCompile(`(?i)(^|_)(password|passwd|secret|token|apikey|api_key|access_key|secret_key|credential|credentials)$`)

// checkCredentials scans every string in the document for static
// credentials. Publishing is token-based and scoped to the run; nothing
// long-lived belongs in the file.
func checkCredentials(doc map[string]interface{}, report *Report) {
	walkStrings(doc, "", "", func(fieldPath, key, value string) {
		for _, cred := range credentialPatterns {
			if cred.pattern.MatchString(value) {
				report.add(RuleCredentials, SeverityError, fieldPath,
					"value contains %s; use trusted publishing or an environment reference instead", cred.name)
				return
			}
		}
		if fieldPath == "trigger.webhook.secret" {
			return
		}
		if secretKeyNames.MatchString(key) && value != "" && !config.IsEnvReference(value) {
			report.add(RuleCredentials, SeverityError, fieldPath,
				"looks like a static credential; use an environment reference like ${%s}", strings.ToUpper(key))
		}
	})
}

// checkWebhookSecret requires the listener secret to be an environment
// reference. A missing secret leaves deliveries unverifiable, which is
// worth a warning but still runs.
func checkWebhookSecret(doc map[string]interface{}, report *Report) {
	trigger := section(doc, "trigger")
	raw, ok := trigger["webhook"]
	if !ok {
		return
	}
	webhook, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	secret, _ := stringField(webhook, "secret")
	if secret == "" {
		report.add(RuleWebhookSecret, SeverityWarning, "trigger.webhook.secret",
			"no secret configured; deliveries cannot be verified")
		return
	}
	if !config.IsEnvReference(secret) {
		report.add(RuleWebhookSecret, SeverityError, "trigger.webhook.secret",
			"secret is written literally; use an environment reference like ${SLIPWAY_WEBHOOK_SECRET}")
	}
}

func section(doc map[string]interface{}, key string) map[string]interface{} {
	if doc == nil {
		return nil
	}
	s, _ := doc[key].(map[string]interface{})
	return s
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// walkStrings visits every string value in the document in key order,
// handing the visitor the dotted field path and the immediate key.
func walkStrings(value interface{}, fieldPath, key string, visit func(fieldPath, key, value string)) {
	switch v := value.(type) {
	case string:
		visit(fieldPath, key, v)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := k
			if fieldPath != "" {
				childPath = fieldPath + "." + k
			}
			walkStrings(v[k], childPath, k, visit)
		}
	case []interface{}:
		for i, item := range v {
			walkStrings(item, fmt.Sprintf("%s[%d]", fieldPath, i), key, visit)
		}
	}
}
