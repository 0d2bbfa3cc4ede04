package tgp

import (
	"regexp"
	"strings"
)

var (
	addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	bytes32Re = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Address reports whether s is a 0x-prefixed, 40 hex-char address.
func Address(s string) bool { return addressRe.MatchString(s) }

// Bytes32 reports whether s is a 0x-prefixed, 64 hex-char value.
func Bytes32(s string) bool { return bytes32Re.MatchString(s) }

// NonEmpty reports whether s, trimmed, has nonzero length.
func NonEmpty(s string) bool { return strings.TrimSpace(s) != "" }

// PositiveAmount reports whether n is strictly greater than zero.
func PositiveAmount(n uint64) bool { return n > 0 }

// CorrelationID reports whether s is non-empty and, if prefix is given,
// begins with "prefix-".
func CorrelationID(s, prefix string) bool {
	if !NonEmpty(s) {
		return false
	}
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(s, prefix+"-")
}

// Validate runs the structural validator appropriate to msg's concrete
// type and returns a ready-to-emit ErrorMessage on failure, or nil on
// success. Validator failures are never retried.
func Validate(msg Message) *ErrorMessage {
	switch m := msg.(type) {
	case *Query:
		return validateQuery(m)
	case *Ack:
		return validateAck(m)
	case *Settle:
		return validateSettle(m)
	case *ErrorMessage:
		return validateError(m)
	default:
		return NewError("", "INVALID_JSON", "unrecognized message kind")
	}
}

func validateQuery(q *Query) *ErrorMessage {
	// Generic structural shape: missing/malformed fields are layer-0
	// failures surfaced as INVALID_QUERY.
	if !NonEmpty(q.Intent.Verb) || !NonEmpty(q.Intent.Party) {
		return NewError(q.ID, "INVALID_QUERY", "intent.verb and intent.party are required").WithCorrelation(q.CorrelationID)
	}
	if q.Intent.Mode != ModeDirect && q.Intent.Mode != ModeShielded {
		return NewError(q.ID, "INVALID_QUERY", "intent.mode must be DIRECT or SHIELDED").WithCorrelation(q.CorrelationID)
	}
	if !NonEmpty(q.Asset) {
		return NewError(q.ID, "INVALID_QUERY", "asset is required").WithCorrelation(q.CorrelationID)
	}
	if !Address(q.From) || !Address(q.To) {
		return NewError(q.ID, "INVALID_QUERY", "from/to must be 0x-prefixed 20-byte addresses").WithCorrelation(q.CorrelationID)
	}
	switch q.ZKProfile {
	case "", ZKNone, ZKOptional, ZKRequired:
	default:
		return NewError(q.ID, "INVALID_QUERY", "zk_profile must be None, Optional, or Required").WithCorrelation(q.CorrelationID)
	}

	// Pre-layer sanity: dedicated codes, reported at layer 1 (the point at
	// which registry resolution would otherwise begin). See DESIGN.md
	// (internal/tgp) for why this deviates from the generic INVALID_QUERY
	// path.
	if !NonEmpty(q.PaymentProfile) {
		return NewError(q.ID, "TGP_PROFILE_INVALID", "payment_profile must not be empty").WithLayer(1).WithCorrelation(q.CorrelationID)
	}
	if q.ChainID <= 0 {
		return NewError(q.ID, "TGP_CHAIN_INVALID", "chain_id must be positive").WithLayer(1).WithCorrelation(q.CorrelationID)
	}
	if !PositiveAmount(q.Amount) {
		return NewError(q.ID, "TGP_AMOUNT_ZERO", "amount must be positive").WithLayer(1).WithCorrelation(q.CorrelationID)
	}

	return nil
}

func validateAck(a *Ack) *ErrorMessage {
	switch a.Status {
	case StatusOffer, StatusAllow, StatusDeny, StatusRevise:
	default:
		return NewError(a.ID, "INVALID_ACK_STATUS", "status must be one of offer, allow, deny, revise").WithCorrelation(a.CorrelationID)
	}

	switch a.Status {
	case StatusAllow:
		if a.Tx == nil {
			return NewError(a.ID, "INVALID_ACK_ALLOW", "status=allow requires tx").WithCorrelation(a.CorrelationID)
		}
		if err := validateEnvelope(a.Tx); err != nil {
			return NewError(a.ID, "INVALID_ECON_ENVELOPE", err.Error()).WithCorrelation(a.CorrelationID)
		}
	case StatusOffer:
		if a.Tx != nil {
			return NewError(a.ID, "INVALID_ACK_OFFER", "status=offer must not carry tx").WithCorrelation(a.CorrelationID)
		}
	case StatusDeny:
		if a.Tx != nil {
			return NewError(a.ID, "INVALID_ACK_DENY", "status=deny must not carry tx").WithCorrelation(a.CorrelationID)
		}
	case StatusRevise:
		if a.Tx != nil {
			return NewError(a.ID, "INVALID_ACK_REVISE", "status=revise must not carry tx").WithCorrelation(a.CorrelationID)
		}
	}
	return nil
}

func validateEnvelope(tx *EconomicEnvelope) error {
	switch {
	case tx.ChainID <= 0:
		return errMsg("chain_id must be positive")
	case tx.GasLimit == 0:
		return errMsg("gas_limit must be positive")
	case tx.FeesBps < 0 || tx.FeesBps > 10000:
		return errMsg("fees_bps must be within [0, 10000]")
	case !NonEmpty(tx.To):
		return errMsg("to is required")
	}
	return nil
}

func validateSettle(s *Settle) *ErrorMessage {
	switch s.Source {
	case SourceLayer8Event, SourceContractLog, SourceGatewayEmitted, SourceManualReport:
	default:
		return NewError(s.ID, "INVALID_SETTLE", "source must be a recognized SettleSource").WithCorrelation(s.CorrelationID)
	}
	if !NonEmpty(s.Result.FinalStatus) {
		return NewError(s.ID, "INVALID_SETTLE", "result.final_status is required").WithCorrelation(s.CorrelationID)
	}
	if s.Source.RequiresVerification() && !NonEmpty(s.Layer8Tx) {
		return NewError(s.ID, "SETTLEMENT_UNVERIFIED", "source requires layer8_tx but none was provided").WithCorrelation(s.CorrelationID)
	}
	return nil
}

func validateError(e *ErrorMessage) *ErrorMessage {
	if !NonEmpty(e.Code) || e.Code != strings.ToUpper(e.Code) {
		return NewError(e.ID, "INVALID_ERROR", "code must be a non-empty uppercase tag").WithCorrelation(e.CorrelationID)
	}
	if !NonEmpty(e.Message) {
		return NewError(e.ID, "INVALID_ERROR", "message is required").WithCorrelation(e.CorrelationID)
	}
	return nil
}

type validationErr string

func (e validationErr) Error() string { return string(e) }

func errMsg(s string) error { return validationErr(s) }
