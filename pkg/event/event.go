// Package event models release deliveries: the typed fields the pipeline
// consumes plus the raw payload document that trigger filters match
// against.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Delivery headers on webhook requests.
const (
	EventHeader     = "X-Forge-Event"
	DeliveryHeader  = "X-Forge-Delivery"
	SignatureHeader = "X-Hub-Signature-256"
)

// ReleaseEventType is the only delivery type that can activate the
// pipeline.
const ReleaseEventType = "release"

// Event is one release delivery.
type Event struct {
	Action     string     `json:"action"`
	Release    Release    `json:"release"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`

	payload map[string]interface{}
}

// Release carries the released tag and its metadata.
type Release struct {
	ID              int64  `json:"id"`
	TagName         string `json:"tag_name"`
	Name            string `json:"name"`
	TargetCommitish string `json:"target_commitish"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

// Repository identifies where to fetch source from.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
}

// Sender is the account that published the release.
type Sender struct {
	Login string `json:"login"`
}

// Parse decodes a delivery payload. It is deliberately lenient: filters
// decide whether the event activates anything, and Validate guards the
// fields a run actually needs.
func Parse(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	e.payload = payload
	return &e, nil
}

// LoadFile reads an event payload from disk, for one-shot runs with
// --event.
func LoadFile(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload: %w", err)
	}
	return Parse(data)
}

// Payload returns the raw document for filter matching.
func (e *Event) Payload() map[string]interface{} {
	return e.payload
}

// Validate checks the fields a pipeline run needs.
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("event has no action")
	}
	if e.Release.TagName == "" {
		return fmt.Errorf("event has no release.tag_name")
	}
	if e.Repository.CloneURL == "" {
		return fmt.Errorf("event has no repository.clone_url")
	}
	return nil
}

// Version is the release version: the tag with any leading v stripped.
func (e *Event) Version() string {
	tag := e.Release.TagName
	if len(tag) > 1 && (tag[0] == 'v' || tag[0] == 'V') {
		return tag[1:]
	}
	return tag
}

var commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Revision returns the commit SHA the release claims to point at, or ""
// when target_commitish holds a branch name instead of a SHA. Checkout
// verification only applies when a SHA is declared.
func (e *Event) Revision() string {
	rev := strings.ToLower(e.Release.TargetCommitish)
	if commitSHAPattern.MatchString(rev) {
		return rev
	}
	return ""
}

// Describe returns a short human identifier for logs, like
// "acme/widget v1.2.0".
func (e *Event) Describe() string {
	if e.Repository.FullName == "" {
		return e.Release.TagName
	}
	return fmt.Sprintf("%s %s", e.Repository.FullName, e.Release.TagName)
}
