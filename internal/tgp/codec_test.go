package tgp

import "testing"

func TestClassifyQuery(t *testing.T) {
	raw := []byte(`{"type":"query","id":"q1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	meta, msg, errMsg := Classify(raw)
	if errMsg != nil {
		t.Fatalf("unexpected classify error: %+v", errMsg)
	}
	if meta.MsgType != KindQuery || meta.MsgID != "q1" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	q, ok := msg.(*Query)
	if !ok {
		t.Fatalf("expected *Query, got %T", msg)
	}
	if q.Amount != 1000 || q.ChainID != 369 {
		t.Fatalf("unexpected query body: %+v", q)
	}
}

func TestClassifySynthesizesID(t *testing.T) {
	raw := []byte(`{"type":"ERROR","code":"X","message":"y"}`)
	meta, msg, errMsg := Classify(raw)
	if errMsg != nil {
		t.Fatalf("unexpected classify error: %+v", errMsg)
	}
	if meta.MsgID == "" {
		t.Fatalf("expected synthesized id")
	}
	if msg.MsgID() != meta.MsgID {
		t.Fatalf("message id %q does not match metadata id %q", msg.MsgID(), meta.MsgID)
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	_, _, errMsg := Classify([]byte(`not json`))
	if errMsg == nil || errMsg.Code != "INVALID_JSON" {
		t.Fatalf("expected INVALID_JSON, got %+v", errMsg)
	}
}

func TestClassifyMissingType(t *testing.T) {
	_, _, errMsg := Classify([]byte(`{"id":"x"}`))
	if errMsg == nil || errMsg.Code != "MISSING_TYPE" {
		t.Fatalf("expected MISSING_TYPE, got %+v", errMsg)
	}
}

func TestClassifyForbiddenOffer(t *testing.T) {
	_, _, errMsg := Classify([]byte(`{"type":"OFFER","id":"x"}`))
	if errMsg == nil || errMsg.Code != "UNSUPPORTED_TYPE" {
		t.Fatalf("expected UNSUPPORTED_TYPE for OFFER, got %+v", errMsg)
	}
}

func TestClassifyUnsupportedType(t *testing.T) {
	_, _, errMsg := Classify([]byte(`{"type":"BOGUS","id":"x"}`))
	if errMsg == nil || errMsg.Code != "UNSUPPORTED_TYPE" {
		t.Fatalf("expected UNSUPPORTED_TYPE, got %+v", errMsg)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Ack{Type: KindAck, ID: "a1", Status: StatusOffer}
	raw, err := Encode(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	_, msg, errMsg := Classify(raw)
	if errMsg != nil {
		t.Fatalf("unexpected classify error: %+v", errMsg)
	}
	decoded, ok := msg.(*Ack)
	if !ok {
		t.Fatalf("expected *Ack, got %T", msg)
	}
	if decoded.ID != original.ID || decoded.Status != original.Status {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, original)
	}
}
