package gateway

import (
	"errors"
	"testing"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("whsec_test")
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"order_id":"gw_1"}}}}`)

	if err := v.Verify(body, v.Sign(body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifier_FailsClosed(t *testing.T) {
	v := NewVerifier("whsec_test")
	body := []byte(`{"event":"payment.captured"}`)

	if err := v.Verify(body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("missing signature: got %v", err)
	}
	if err := v.Verify(body, "zzzz-not-hex"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("malformed signature: got %v", err)
	}
	other := NewVerifier("other_secret")
	if err := v.Verify(body, other.Sign(body)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong secret: got %v", err)
	}
}

func TestVerifier_SignatureIsOverExactBytes(t *testing.T) {
	v := NewVerifier("whsec_test")
	body := []byte(`{"a":1,"b":2}`)
	sig := v.Sign(body)

	// Semantically identical JSON with different bytes must not verify.
	reordered := []byte(`{"b":2,"a":1}`)
	if err := v.Verify(reordered, sig); err == nil {
		t.Fatal("signature accepted over different bytes")
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"gw_1","amount":99900,"currency":"INR","status":"captured"}}}}`)
	evt, err := ParseEvent(raw)
	if err != nil {
		t.Fatal(err)
	}
	e := evt.Payload.Payment.Entity
	if evt.Event != EventPaymentCaptured || e.ID != "pay_1" || e.OrderID != "gw_1" || e.Amount != 99900 {
		t.Fatalf("unexpected event: %+v", evt)
	}

	for _, bad := range []string{
		`not json`,
		`{}`,
		`{"event":"payment.captured"}`,
	} {
		if _, err := ParseEvent([]byte(bad)); err == nil {
			t.Fatalf("ParseEvent(%q) accepted", bad)
		}
	}
}
