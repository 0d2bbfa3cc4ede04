// Package envelope builds the EconomicEnvelope a verified QUERY earns:
// the structured, client-executable description of the on-chain call
// that settles its intent.
package envelope

import (
	"fmt"
	"time"

	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/tgp"
	"github.com/tbcnet/gateway/internal/verify"
)

// Options configures envelope construction beyond what the query and
// profile already carry.
type Options struct {
	// SelfEndpoint is echoed into tbc_endpoint for ACK loopback.
	SelfEndpoint string
	// DefaultFeesBps is copied into fees_bps; values outside [0, 10000]
	// are replaced by 0.
	DefaultFeesBps int
	// Clock supplies "now" for expires_at; defaults to time.Now.
	Clock func() time.Time
}

// Build synthesizes an EconomicEnvelope from a fully-verified query and
// the merchant profile L1 resolved. It returns an error when the query's
// verb has no known calldata encoding or the profile is missing data the
// envelope requires.
func Build(q *tgp.Query, profile *capability.MerchantProfile, opts Options) (*tgp.EconomicEnvelope, error) {
	if profile == nil {
		return nil, fmt.Errorf("envelope: no merchant profile resolved")
	}
	verb := verify.CalldataVerb(q.Intent.Verb)
	if verb == "" {
		return nil, fmt.Errorf("envelope: no calldata encoding for verb %q", q.Intent.Verb)
	}
	target := profile.ContractAddress
	if target == "" {
		target = profile.MerchantAddress
	}
	if target == "" {
		return nil, fmt.Errorf("envelope: merchant profile %q has no settlement target", profile.ID)
	}

	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock
	}
	expires := now().Add(verify.PreviewTTL)

	gasLimit := profile.GasCeiling
	if gasLimit == 0 {
		gasLimit = defaultGasCeiling(verb)
	}

	feesBps := opts.DefaultFeesBps
	if feesBps < 0 || feesBps > 10000 {
		feesBps = 0
	}

	return &tgp.EconomicEnvelope{
		To:          target,
		Value:       q.Amount,
		Data:        encodeCalldata(verb, q),
		ChainID:     q.ChainID,
		GasLimit:    gasLimit,
		RPCURL:      profile.RPCURL,
		TBCEndpoint: opts.SelfEndpoint,
		ExpiresAt:   &expires,
		FeesBps:     feesBps,
	}, nil
}

// encodeCalldata produces a placeholder ABI-style calldata string for
// one of the four well-known settlement verbs. Real ABI encoding is an
// RPC-adapter concern out of this module's scope; here the selector and
// the intent's economically meaningful fields are enough to describe
// what the client will submit.
func encodeCalldata(verb string, q *tgp.Query) string {
	return fmt.Sprintf("0x%s(profile=%s,amount=%d,from=%s,to=%s)", verb, q.PaymentProfile, q.Amount, q.From, q.To)
}

// defaultGasCeiling is a conservative per-verb fallback used only when
// the registry has not declared a gas ceiling for the profile.
func defaultGasCeiling(verb string) uint64 {
	switch verb {
	case "buyerCommit", "sellerCommit":
		return 120000
	case "settle":
		return 150000
	case "withdraw":
		return 90000
	default:
		return 100000
	}
}
