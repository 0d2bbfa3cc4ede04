// Package verify implements the layered verification pipeline (L1
// Registry through L6 withdraw eligibility) that decides whether a QUERY
// yields a binding envelope or a typed, layer-tagged rejection.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/tgp"
)

// Clock abstracts time.Now so layers are deterministically testable.
type Clock func() time.Time

const (
	// PreviewTTL is the default lifetime of a previewed envelope.
	PreviewTTL = 5 * time.Minute
	// ProofTTL bounds how far in the past a ZK proof timestamp may be.
	ProofTTL = 2 * time.Minute
	// MaxSkew bounds how far in the future a ZK proof timestamp may be.
	MaxSkew = 30 * time.Second
	// AnomalyThreshold is the score at or above which L5 rejects a QUERY.
	AnomalyThreshold = 50
)

// Result is the outcome of running the full pipeline over a Query. On
// success Profile is populated; on failure Failure names the layer and
// reason. Run never sets Envelope; the router builds the envelope with
// internal/envelope.
type Result struct {
	Profile  *capability.MerchantProfile
	Envelope *tgp.EconomicEnvelope
	Failure  *LayerFailure
}

// LayerFailure names the layer that rejected a Query and why.
type LayerFailure struct {
	Layer   int
	Code    string
	Message string
}

func fail(layer int, code, format string, args ...any) *LayerFailure {
	return &LayerFailure{Layer: layer, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Verifier runs L1 through L6 against a Query, consulting the supplied
// capability set. An unconfigured capability (nil on the Set) is treated
// as fail-closed, never as pass-through, per the gateway's design.
type Verifier struct {
	Caps  capability.Set
	Clock Clock
}

// New constructs a Verifier using the given capability set and
// time.Now as its clock.
func New(caps capability.Set) *Verifier {
	return &Verifier{Caps: caps, Clock: time.Now}
}

// Run executes L1..L5 unconditionally, and L6 only when the query's
// verb is WITHDRAW, fail-fast on the first failing layer.
func (v *Verifier) Run(ctx context.Context, q *tgp.Query) *Result {
	now := v.Clock
	if now == nil {
		now = time.Now
	}

	profile, lf := v.runL1Registry(ctx, q)
	if lf != nil {
		return &Result{Failure: lf}
	}
	if lf := v.runL2Cryptographic(ctx, q, profile); lf != nil {
		return &Result{Failure: lf}
	}
	if lf := v.runL3ContractRPC(ctx, q, profile); lf != nil {
		return &Result{Failure: lf}
	}
	if lf := v.runL4ZKAttestation(ctx, q, now()); lf != nil {
		return &Result{Failure: lf}
	}
	if lf := v.runL5Policy(ctx, q, profile, now()); lf != nil {
		return &Result{Failure: lf}
	}
	if q.Intent.Verb == "WITHDRAW" {
		if lf := v.runL6Withdraw(ctx, q); lf != nil {
			return &Result{Failure: lf}
		}
	}

	return &Result{Profile: profile}
}

// runL1Registry resolves payment_profile to a known, whitelisted
// merchant entry permitting the requested asset.
func (v *Verifier) runL1Registry(ctx context.Context, q *tgp.Query) (*capability.MerchantProfile, *LayerFailure) {
	if v.Caps.Registry == nil {
		return nil, fail(1, "TGP_L1_FAILURE", "registry capability not configured")
	}
	profile, err := v.Caps.Registry.ResolveProfile(ctx, q.PaymentProfile)
	if err != nil {
		return nil, fail(1, "TGP_L1_FAILURE", "unknown payment profile: %v", err)
	}
	if !profile.Whitelisted {
		return nil, fail(1, "TGP_L1_FAILURE", "merchant profile is not whitelisted")
	}
	if profile.Asset != "" && profile.Asset != q.Asset {
		return nil, fail(1, "TGP_L1_FAILURE", "asset %q is not accepted by this profile", q.Asset)
	}
	return profile, nil
}

// runL2Cryptographic checks delegated-session-key constraints: expiry,
// chain, and function selector. Spend limit is enforced at L5 alongside
// the rest of merchant policy, matching the original evaluation order.
func (v *Verifier) runL2Cryptographic(ctx context.Context, q *tgp.Query, profile *capability.MerchantProfile) *LayerFailure {
	if v.Caps.Policy == nil {
		return fail(2, "TGP_L2_FAILURE", "policy capability not configured")
	}
	policy, err := v.Caps.Policy.SessionPolicy(ctx, q.PaymentProfile, q.Intent.Party)
	if err != nil {
		return fail(2, "TGP_L2_FAILURE", "no session policy: %v", err)
	}
	now := time.Now()
	if v.Clock != nil {
		now = v.Clock()
	}
	if !policy.Expiry.IsZero() && now.After(policy.Expiry) {
		return fail(2, "TGP_L2_FAILURE", "session key expired at %s", policy.Expiry)
	}
	if policy.ChainID != 0 && policy.ChainID != q.ChainID {
		return fail(2, "TGP_L2_FAILURE", "session key is scoped to chain %d, query is chain %d", policy.ChainID, q.ChainID)
	}
	if len(policy.FunctionSelectors) > 0 && !selectorAllowed(policy.FunctionSelectors, q.Intent.Verb) {
		return fail(2, "TGP_L2_FAILURE", "verb %q is not an allowed function selector for this session key", q.Intent.Verb)
	}
	return nil
}

func selectorAllowed(selectors []string, verb string) bool {
	selector := CalldataVerb(verb)
	for _, s := range selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// runL3ContractRPC verifies that the profile's settlement contract, when
// the registry names one, has the registry-declared bytecode hash, and
// probes chain head liveness. Only that one contract is checked; a
// MerchantProfile carries no separate profile-contract address.
func (v *Verifier) runL3ContractRPC(ctx context.Context, q *tgp.Query, profile *capability.MerchantProfile) *LayerFailure {
	if v.Caps.RPC == nil {
		return fail(3, "TGP_L3_FAILURE", "rpc capability not configured")
	}
	if profile.ContractAddress != "" {
		hash, err := v.Caps.RPC.BytecodeHash(ctx, profile.ContractAddress)
		if err != nil {
			return fail(3, "TGP_L3_FAILURE", "bytecode lookup failed: %v", err)
		}
		if profile.ContractHash != "" && hash != profile.ContractHash {
			return fail(3, "TGP_L3_FAILURE", "contract bytecode hash mismatch for %s", profile.ContractAddress)
		}
	}
	live, err := v.Caps.RPC.HeadLiveness(ctx)
	if err != nil || !live {
		return fail(3, "TGP_L3_FAILURE", "chain head is not live: %v", err)
	}
	return nil
}

// runL4ZKAttestation enforces the proof requirement implied by
// q.ZKProfile: Required demands a valid proof, Optional applies the same
// rules only when a proof is present, None short-circuits.
func (v *Verifier) runL4ZKAttestation(ctx context.Context, q *tgp.Query, now time.Time) *LayerFailure {
	switch q.ZKProfile {
	case "", tgp.ZKNone:
		return nil
	case tgp.ZKOptional:
		if q.ZKProof == nil {
			return nil
		}
	case tgp.ZKRequired:
		if q.ZKProof == nil {
			return fail(4, "TGP_L4_FAILURE", "zk_profile=Required but no proof was supplied")
		}
	default:
		return fail(4, "TGP_L4_FAILURE", "unrecognized zk_profile %q", q.ZKProfile)
	}

	if v.Caps.ZK == nil || v.Caps.Nullifier == nil {
		return fail(4, "TGP_L4_FAILURE", "zk verifier capability not configured")
	}

	valid, nullifier, ts, err := v.Caps.ZK.Verify(ctx, q.ZKProof.Payload)
	if err != nil || !valid {
		return fail(4, "TGP_L4_FAILURE", "zk proof rejected: %v", err)
	}
	if ts.Before(now.Add(-ProofTTL)) || ts.After(now.Add(MaxSkew)) {
		return fail(4, "TGP_L4_FAILURE", "zk proof timestamp %s outside acceptable window", ts)
	}
	fresh, err := v.Caps.Nullifier.ConsumeIfUnused(ctx, nullifier)
	if err != nil {
		return fail(4, "TGP_L4_FAILURE", "nullifier store error: %v", err)
	}
	if !fresh {
		return fail(4, "TGP_L4_FAILURE", "nullifier already consumed")
	}
	return nil
}

// runL5Policy evaluates merchant- and session-scoped policy in the
// order recovered from the original implementation: expiry, chain
// match, function-selector match, policy-hash match, idempotency, spend
// limit, frequency window, anomaly score.
func (v *Verifier) runL5Policy(ctx context.Context, q *tgp.Query, profile *capability.MerchantProfile, now time.Time) *LayerFailure {
	if v.Caps.Policy == nil {
		return fail(5, "TGP_L5_FAILURE", "policy capability not configured")
	}
	policy, err := v.Caps.Policy.SessionPolicy(ctx, q.PaymentProfile, q.Intent.Party)
	if err != nil {
		return fail(5, "TGP_L5_FAILURE", "no session policy: %v", err)
	}

	if !policy.Expiry.IsZero() && now.After(policy.Expiry) {
		return fail(5, "TGP_L5_FAILURE", "policy expired at %s", policy.Expiry)
	}
	if policy.ChainID != 0 && policy.ChainID != q.ChainID {
		return fail(5, "TGP_L5_FAILURE", "policy chain mismatch")
	}
	if len(policy.FunctionSelectors) > 0 && !selectorAllowed(policy.FunctionSelectors, q.Intent.Verb) {
		return fail(5, "TGP_L5_FAILURE", "verb not permitted by policy")
	}
	if policy.PolicyHash != "" && profile.ContractHash != "" && policy.PolicyHash != profile.ContractHash {
		return fail(5, "TGP_L5_FAILURE", "policy hash mismatch")
	}
	if q.IdempotencyKey != "" && policy.UsedIdempotency[q.IdempotencyKey] {
		return fail(5, "TGP_L5_FAILURE", "idempotency key already used")
	}
	if policy.SpendLimit > 0 && q.Amount > policy.SpendLimit {
		return fail(5, "TGP_L5_FAILURE", "amount %d exceeds spend limit %d", q.Amount, policy.SpendLimit)
	}
	fw := policy.FrequencyWindow
	if fw.Window > 0 && !fw.LastUse.IsZero() && now.Sub(fw.LastUse) < fw.Window {
		return fail(5, "TGP_L5_FAILURE", "session key last used %s ago, inside frequency window %s", now.Sub(fw.LastUse), fw.Window)
	}

	score := AnomalyScore(policy, q.Amount, now)
	if score >= AnomalyThreshold {
		return fail(5, "TGP_L5_FAILURE", "anomaly score %d at or above threshold %d", score, AnomalyThreshold)
	}
	return nil
}

// AnomalyScore computes the deterministic anomaly score for an amount
// against a session policy at a point in time. Constants are pinned from
// the original enforcement logic: +40 when amount exceeds twice the
// spend limit, +20 when it exceeds the spend limit, +10 when the gap
// since the frequency window's last use is under ten seconds.
func AnomalyScore(policy *capability.SessionKeyPolicy, amount uint64, now time.Time) int {
	score := 0
	if policy.SpendLimit > 0 {
		if amount > 2*policy.SpendLimit {
			score += 40
		} else if amount > policy.SpendLimit {
			score += 20
		}
	}
	if !policy.FrequencyWindow.LastUse.IsZero() && now.Sub(policy.FrequencyWindow.LastUse) < 10*time.Second {
		score += 10
	}
	return score
}

// runL6Withdraw checks that the escrow is in a state permitting
// withdraw: an expired acceptance window with no acceptance, or an
// expired fulfillment window with no fulfillment, and never after any
// fulfillment.
func (v *Verifier) runL6Withdraw(ctx context.Context, q *tgp.Query) *LayerFailure {
	if v.Caps.Escrow == nil {
		return fail(6, "TGP_L6_WITHDRAW_FAILURE", "escrow state capability not configured")
	}
	phase, err := v.Caps.Escrow.StateOf(ctx, q.PaymentProfile)
	if err != nil {
		return fail(6, "TGP_L6_WITHDRAW_FAILURE", "escrow state lookup failed: %v", err)
	}
	switch phase {
	case capability.EscrowExpired, capability.EscrowNone:
		return nil
	case capability.EscrowBuyerCommitted, capability.EscrowBothCommitted, capability.EscrowSettled:
		return fail(6, "TGP_L6_WITHDRAW_FAILURE", "escrow is in phase %s; withdraw is not permitted", phase)
	default:
		return fail(6, "TGP_L6_WITHDRAW_FAILURE", "unrecognized escrow phase %q", phase)
	}
}

// CalldataVerb maps an intent verb to the settlement contract's selector
// name, grounded on the four well-known verbs the envelope builder
// knows how to encode: buyerCommit, sellerCommit, settle, withdraw.
func CalldataVerb(verb string) string {
	switch verb {
	case "BUYER_COMMIT":
		return "buyerCommit"
	case "SELLER_COMMIT":
		return "sellerCommit"
	case "PAY", "SETTLE":
		return "settle"
	case "WITHDRAW":
		return "withdraw"
	default:
		return ""
	}
}
