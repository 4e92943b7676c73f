// Package feature provides feature-slug extraction and entitlement
// validation. All functions are pure.
package feature

import (
	"encoding/json"
	"strings"

	"github.com/artpar/billgate/domain/billing"
)

// MetadataKey is the provider metadata key holding feature slugs.
const MetadataKey = "features"

// Extract maps provider product metadata to an ordered list of trimmed,
// non-empty feature slugs. The value is parsed as a JSON array of strings
// first; anything that is not one is treated as comma-separated text.
// Absent metadata yields an empty list.
// This is a PURE function. Both ingestion paths (plan events, product
// events) rely on it for feature semantics.
func Extract(metadata map[string]string) []string {
	raw, ok := metadata[MetadataKey]
	if !ok {
		return nil
	}
	return ExtractString(raw)
}

// ExtractString parses a raw features value. See Extract.
func ExtractString(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		var out []string
		for _, v := range arr {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Reason explains why a validation decision denied access.
type Reason string

const (
	ReasonNoSubscription Reason = "NO_SUBSCRIPTION"
	ReasonInactive       Reason = "INACTIVE"
)

// Decision is a structured access-control decision. Validation helpers
// never return errors; absence of access is expressed here.
type Decision struct {
	Allowed         bool
	Reason          Reason
	MissingFeatures []string
}

// ValidateRequired checks that every required feature slug is present in
// the available set. Allowed is true iff nothing is missing.
// This is a PURE function.
func ValidateRequired(required []string, available map[string]struct{}) Decision {
	var missing []string
	for _, r := range required {
		if _, ok := available[r]; !ok {
			missing = append(missing, r)
		}
	}
	return Decision{
		Allowed:         len(missing) == 0,
		MissingFeatures: missing,
	}
}

// ValidateActiveSubscription checks that a subscription exists and is in
// an access-granting state (active or trialing).
// This is a PURE function.
func ValidateActiveSubscription(sub *billing.Subscription) Decision {
	if sub == nil {
		return Decision{Allowed: false, Reason: ReasonNoSubscription}
	}
	if !sub.IsActive() {
		return Decision{Allowed: false, Reason: ReasonInactive}
	}
	return Decision{Allowed: true}
}

// Set builds a lookup set from a slug list.
// This is a PURE function.
func Set(slugs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return set
}
