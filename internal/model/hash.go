package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainJob     = "routegen/job/v1"
	DomainRequest = "routegen/request/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// JobID computes the content-addressed ID of a job from its name, kind,
// templates (with effective sub-templates), schedules and routes.
// The same decomposition of the same request always yields the same IDs.
func JobID(j GenerationJob) (string, error) {
	templates := make([]any, len(j.Templates))
	for i, t := range j.Templates {
		subs := make([]string, len(t.SubTemplates))
		for k, s := range t.SubTemplates {
			subs[k] = s.ID
		}
		templates[i] = map[string]any{
			"id":            t.ID,
			"sub_templates": subs,
		}
	}
	schedules := make([]string, len(j.Schedules))
	for i, s := range j.Schedules {
		schedules[i] = s.ID
	}

	canonical, err := MarshalCanonical(map[string]any{
		"name":      j.Name,
		"kind":      string(j.Kind),
		"templates": templates,
		"schedules": schedules,
		"routes":    j.RouteIDs(),
	})
	if err != nil {
		return "", fmt.Errorf("JobID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainJob, canonical), nil
}

// RequestHash computes a stable fingerprint of a request's selection:
// template IDs, schedule IDs, route IDs and the per-route policy.
// Run logs use it to relate resubmissions of the same logical request.
func RequestHash(r GenerationRequest) (string, error) {
	schedules := make([]string, len(r.Schedules))
	for i, s := range r.Schedules {
		schedules[i] = s.ID
	}
	routes := make([]string, len(r.Routes))
	for i, rt := range r.Routes {
		routes[i] = rt.ID
	}
	canonical, err := MarshalCanonical(map[string]any{
		"templates":          r.TemplateIDs(),
		"schedules":          schedules,
		"routes":             routes,
		"separate_per_route": r.SeparatePerRoute,
	})
	if err != nil {
		return "", fmt.Errorf("RequestHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// MustJobID is like JobID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustJobID(j GenerationJob) string {
	id, err := JobID(j)
	if err != nil {
		panic(err)
	}
	return id
}
