package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
)

type fakeParser struct {
	err error
}

func (f *fakeParser) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if f.err != nil {
		return stripe.Event{}, f.err
	}
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return stripe.Event{}, err
	}
	return ev, nil
}

type fakeProcessor struct {
	err    error
	events []*stripe.Event
}

func (f *fakeProcessor) Handle(ctx context.Context, event *stripe.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func postWebhook(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_Accepts(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewWebhookHandler(&fakeParser{}, proc, zerolog.Nop())

	rec := postWebhook(h, `{"id":"evt_1","type":"plan.created","data":{"object":{}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(proc.events) != 1 || proc.events[0].ID != "evt_1" {
		t.Errorf("processor saw %v", proc.events)
	}
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewWebhookHandler(&fakeParser{err: errors.New("bad signature")}, proc, zerolog.Nop())

	rec := postWebhook(h, `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(proc.events) != 0 {
		t.Error("unverified event must not reach the processor")
	}
}

func TestWebhookHandler_ProcessorFailureTriggersRetry(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("store down")}
	h := NewWebhookHandler(&fakeParser{}, proc, zerolog.Nop())

	rec := postWebhook(h, `{"id":"evt_1","type":"plan.created"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider redelivers", rec.Code)
	}
}
