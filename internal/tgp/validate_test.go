package tgp

import "testing"

func validQuery() *Query {
	return &Query{
		Type:           KindQuery,
		ID:             "q1",
		Intent:         Intent{Verb: "PAY", Party: "buyer", Mode: ModeShielded},
		ChainID:        369,
		PaymentProfile: "prof-a",
		Amount:         1000,
		Asset:          "USDC",
		From:           "0x0000000000000000000000000000000000000001",
		To:             "0x0000000000000000000000000000000000000002",
	}
}

func TestValidateQueryOK(t *testing.T) {
	if err := Validate(validQuery()); err != nil {
		t.Fatalf("expected valid query, got %+v", err)
	}
}

func TestValidateQueryChainIDZero(t *testing.T) {
	q := validQuery()
	q.ChainID = 0
	err := Validate(q)
	if err == nil || err.Code != "TGP_CHAIN_INVALID" {
		t.Fatalf("expected TGP_CHAIN_INVALID, got %+v", err)
	}
	if err.LayerFailed == nil || *err.LayerFailed != 1 {
		t.Fatalf("expected layer_failed=1, got %+v", err.LayerFailed)
	}
}

func TestValidateQueryAmountZero(t *testing.T) {
	q := validQuery()
	q.Amount = 0
	err := Validate(q)
	if err == nil || err.Code != "TGP_AMOUNT_ZERO" {
		t.Fatalf("expected TGP_AMOUNT_ZERO, got %+v", err)
	}
}

func TestValidateQueryEmptyProfile(t *testing.T) {
	q := validQuery()
	q.PaymentProfile = ""
	err := Validate(q)
	if err == nil || err.Code != "TGP_PROFILE_INVALID" {
		t.Fatalf("expected TGP_PROFILE_INVALID, got %+v", err)
	}
}

func TestValidateQueryBadAddress(t *testing.T) {
	q := validQuery()
	q.From = "not-an-address"
	err := Validate(q)
	if err == nil || err.Code != "INVALID_QUERY" {
		t.Fatalf("expected INVALID_QUERY, got %+v", err)
	}
}

func TestValidateAckAllowRequiresTx(t *testing.T) {
	a := &Ack{Type: KindAck, ID: "a1", Status: StatusAllow}
	err := Validate(a)
	if err == nil || err.Code != "INVALID_ACK_ALLOW" {
		t.Fatalf("expected INVALID_ACK_ALLOW, got %+v", err)
	}
}

func TestValidateAckOfferMustNotCarryTx(t *testing.T) {
	a := &Ack{Type: KindAck, ID: "a1", Status: StatusOffer, Tx: &EconomicEnvelope{To: "0x1", ChainID: 1, GasLimit: 1}}
	err := Validate(a)
	if err == nil || err.Code != "INVALID_ACK_OFFER" {
		t.Fatalf("expected INVALID_ACK_OFFER, got %+v", err)
	}
}

func TestValidateAckAllowWithValidTx(t *testing.T) {
	a := &Ack{Type: KindAck, ID: "a1", Status: StatusAllow, Tx: &EconomicEnvelope{To: "0xabc", ChainID: 369, GasLimit: 21000, FeesBps: 50}}
	if err := Validate(a); err != nil {
		t.Fatalf("expected valid ack, got %+v", err)
	}
}

func TestValidateSettleRequiresLayer8Tx(t *testing.T) {
	s := &Settle{Type: KindSettle, ID: "s1", Source: SourceLayer8Event, Result: SettleResult{FinalStatus: "DONE"}}
	err := Validate(s)
	if err == nil || err.Code != "SETTLEMENT_UNVERIFIED" {
		t.Fatalf("expected SETTLEMENT_UNVERIFIED, got %+v", err)
	}
}

func TestValidateSettleGatewayEmittedNeedsNoProof(t *testing.T) {
	s := &Settle{Type: KindSettle, ID: "s1", Source: SourceGatewayEmitted, Result: SettleResult{FinalStatus: "DONE"}}
	if err := Validate(s); err != nil {
		t.Fatalf("expected valid settle, got %+v", err)
	}
}

func TestValidateErrorRequiresUppercaseCode(t *testing.T) {
	e := &ErrorMessage{Type: KindError, ID: "e1", Code: "lower", Message: "m"}
	err := Validate(e)
	if err == nil || err.Code != "INVALID_ERROR" {
		t.Fatalf("expected INVALID_ERROR, got %+v", err)
	}
}
