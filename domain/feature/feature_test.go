package feature_test

import (
	"reflect"
	"testing"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/domain/feature"
)

func TestExtractString(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["a","b"]`, []string{"a", "b"}},
		{"comma separated", "a, b", []string{"a", "b"}},
		{"comma with empties", "a,,  ,b,", []string{"a", "b"}},
		{"json array with non-strings", `["a", 1, null, "b"]`, []string{"a", "b"}},
		{"json array with padded strings", `[" a ", ""]`, []string{"a"}},
		{"single slug", "premium", []string{"premium"}},
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"json empty array", `[]`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feature.ExtractString(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractString(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	got := feature.Extract(map[string]string{"features": "f1,f2"})
	if !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Errorf("Extract = %v, want [f1 f2]", got)
	}

	if got := feature.Extract(nil); got != nil {
		t.Errorf("Extract(nil) = %v, want nil", got)
	}

	if got := feature.Extract(map[string]string{"other": "x"}); got != nil {
		t.Errorf("Extract without features key = %v, want nil", got)
	}
}

func TestExtract_RoundTripEquivalence(t *testing.T) {
	// Both encodings of the same feature list extract identically.
	a := feature.ExtractString(`["a","b"]`)
	b := feature.ExtractString("a, b")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("JSON and CSV forms disagree: %v vs %v", a, b)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name        string
		required    []string
		available   []string
		wantAllowed bool
		wantMissing []string
	}{
		{"all present", []string{"x"}, []string{"x", "y"}, true, nil},
		{"one missing", []string{"x", "y"}, []string{"x"}, false, []string{"y"}},
		{"all missing", []string{"x", "y"}, nil, false, []string{"x", "y"}},
		{"nothing required", nil, nil, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := feature.ValidateRequired(tt.required, feature.Set(tt.available))
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if !reflect.DeepEqual(d.MissingFeatures, tt.wantMissing) {
				t.Errorf("MissingFeatures = %v, want %v", d.MissingFeatures, tt.wantMissing)
			}
		})
	}
}

func TestValidateActiveSubscription(t *testing.T) {
	if d := feature.ValidateActiveSubscription(nil); d.Allowed || d.Reason != feature.ReasonNoSubscription {
		t.Errorf("nil subscription: got %+v, want denied NO_SUBSCRIPTION", d)
	}

	if d := feature.ValidateActiveSubscription(&billing.Subscription{Status: "trialing"}); !d.Allowed {
		t.Errorf("trialing subscription: got %+v, want allowed", d)
	}

	if d := feature.ValidateActiveSubscription(&billing.Subscription{Status: "active"}); !d.Allowed {
		t.Errorf("active subscription: got %+v, want allowed", d)
	}

	if d := feature.ValidateActiveSubscription(&billing.Subscription{Status: "paused"}); d.Allowed || d.Reason != feature.ReasonInactive {
		t.Errorf("paused subscription: got %+v, want denied INACTIVE", d)
	}
}
