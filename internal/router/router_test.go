package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/envelope"
	"github.com/tbcnet/gateway/internal/replay"
)

func newTestRouter() *Router {
	registry := capability.NewMemoryRegistry(&capability.MerchantProfile{
		ID:              "prof-a",
		Asset:           "USDC",
		Whitelisted:     true,
		ContractAddress: "0xcontract",
		ContractHash:    "0xhash",
	})
	rpc := capability.NewMemoryRPCClient()
	rpc.SetBytecodeHash("0xcontract", "0xhash")
	policy := capability.NewMemoryPolicyStore()
	policy.Seed("prof-a", "buyer", &capability.SessionKeyPolicy{ChainID: 369, SpendLimit: 5000})

	caps := capability.Set{
		Registry:  registry,
		RPC:       rpc,
		Policy:    policy,
		Escrow:    capability.NewMemoryEscrowState(),
		ZK:        capability.NewMemoryZKVerifier(nil),
		Nullifier: capability.NewMemoryNullifierStore(),
	}
	return New(replay.New(0, 0), caps, envelope.Options{}, nil)
}

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("failed to decode router output: %v, raw=%s", err, raw)
	}
	return m
}

// S1: a SHIELDED QUERY that passes all layers yields ACK(allow, tx).
func TestScenarioS1ShieldedAllow(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"QUERY","id":"q1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["type"] != "ACK" || out["status"] != "allow" {
		t.Fatalf("expected ACK(allow), got %+v", out)
	}
	if out["tx"] == nil {
		t.Fatalf("expected tx envelope present")
	}
}

// S2: resubmitting the same message id yields REPLAY_DETECTED.
func TestScenarioS2ReplayDetected(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"QUERY","id":"q1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	first := decodeMap(t, r.Route(context.Background(), raw))
	if first["type"] != "ACK" {
		t.Fatalf("expected first submission to succeed, got %+v", first)
	}
	second := decodeMap(t, r.Route(context.Background(), raw))
	if second["type"] != "ERROR" || second["code"] != "REPLAY_DETECTED" {
		t.Fatalf("expected REPLAY_DETECTED, got %+v", second)
	}
}

// S3: chain_id=0 yields TGP_CHAIN_INVALID with layer_failed=1.
func TestScenarioS3ChainInvalid(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"QUERY","id":"q3","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":0,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["type"] != "ERROR" || out["code"] != "TGP_CHAIN_INVALID" {
		t.Fatalf("expected TGP_CHAIN_INVALID, got %+v", out)
	}
	if out["layer_failed"] != float64(1) {
		t.Fatalf("expected layer_failed=1, got %+v", out["layer_failed"])
	}
}

// S4: a previously-consumed nullifier fails L4.
func TestScenarioS4NullifierReuseFailsL4(t *testing.T) {
	r := newTestRouter()
	first := []byte(`{"type":"QUERY","id":"q4a","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","zk_profile":"Required","zk_proof":{"payload":"valid:dup"},"from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	if out := decodeMap(t, r.Route(context.Background(), first)); out["type"] != "ACK" {
		t.Fatalf("expected first proof use to succeed, got %+v", out)
	}
	second := []byte(`{"type":"QUERY","id":"q4b","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","zk_profile":"Required","zk_proof":{"payload":"valid:dup"},"from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	out := decodeMap(t, r.Route(context.Background(), second))
	if out["type"] != "ERROR" || out["code"] != "TGP_L4_FAILURE" {
		t.Fatalf("expected TGP_L4_FAILURE, got %+v", out)
	}
	if out["layer_failed"] != float64(4) {
		t.Fatalf("expected layer_failed=4, got %+v", out["layer_failed"])
	}
}

// S5: ACK(status=allow) with no tx yields INVALID_ACK_ALLOW.
func TestScenarioS5InvalidAckAllow(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"ACK","id":"a1","status":"allow"}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["type"] != "ERROR" || out["code"] != "INVALID_ACK_ALLOW" {
		t.Fatalf("expected INVALID_ACK_ALLOW, got %+v", out)
	}
}

// S6: SETTLE from LAYER8_EVENT with no layer8_tx yields SETTLEMENT_UNVERIFIED.
func TestScenarioS6SettlementUnverified(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"SETTLE","id":"s1","source":"LAYER8_EVENT","result":{"final_status":"DONE"}}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["type"] != "ERROR" || out["code"] != "SETTLEMENT_UNVERIFIED" {
		t.Fatalf("expected SETTLEMENT_UNVERIFIED, got %+v", out)
	}
}

func TestDirectModeOffersThenAllows(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"QUERY","id":"qd1","intent":{"verb":"PAY","party":"buyer","mode":"DIRECT"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	first := decodeMap(t, r.Route(context.Background(), raw))
	if first["type"] != "ACK" || first["status"] != "offer" {
		t.Fatalf("expected first DIRECT query to yield offer, got %+v", first)
	}
	if first["tx"] != nil {
		t.Fatalf("expected offer to carry no tx")
	}

	raw2 := []byte(`{"type":"QUERY","id":"qd2","intent":{"verb":"PAY","party":"buyer","mode":"DIRECT"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	second := decodeMap(t, r.Route(context.Background(), raw2))
	if second["type"] != "ACK" || second["status"] != "allow" {
		t.Fatalf("expected second identical DIRECT query to yield allow, got %+v", second)
	}
}

func TestRouteAlwaysReturnsExactlyOneMessage(t *testing.T) {
	r := newTestRouter()
	inputs := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"type":"OFFER"}`),
		[]byte(`{"type":"BOGUS"}`),
	}
	for _, raw := range inputs {
		out := r.Route(context.Background(), raw)
		var m map[string]any
		if err := json.Unmarshal(out, &m); err != nil {
			t.Fatalf("expected exactly one decodable message for input %s, got error %v", raw, err)
		}
		if m["type"] != "ERROR" {
			t.Fatalf("expected ERROR for malformed input %s, got %+v", raw, m)
		}
	}
}

func TestErrorMessageEchoedAsIs(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"ERROR","id":"e1","code":"SOME_CODE","message":"hi"}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["code"] != "SOME_CODE" || out["message"] != "hi" {
		t.Fatalf("expected ERROR echoed as-is, got %+v", out)
	}
}

func TestWithdrawRunsL6(t *testing.T) {
	r := newTestRouter()
	raw := []byte(`{"type":"QUERY","id":"qw1","intent":{"verb":"WITHDRAW","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	out := decodeMap(t, r.Route(context.Background(), raw))
	if out["type"] != "ACK" || out["status"] != "allow" {
		t.Fatalf("expected withdraw on a None-phase escrow to be allowed, got %+v", out)
	}
}

func TestRouteRespectsContextDeadline(t *testing.T) {
	r := newTestRouter()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw := []byte(`{"type":"QUERY","id":"qc1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`)
	out := decodeMap(t, r.Route(ctx, raw))
	if out["type"] != "ACK" {
		t.Fatalf("expected success within deadline, got %+v", out)
	}
}
