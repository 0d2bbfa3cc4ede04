// Package router orchestrates the per-message pipeline shared by both
// transports: classify, replay-check, structurally validate, dispatch
// by kind, and serialize the single outbound message every inbound
// message earns.
package router

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/envelope"
	"github.com/tbcnet/gateway/internal/replay"
	"github.com/tbcnet/gateway/internal/tgp"
	"github.com/tbcnet/gateway/internal/verify"
)

// Router holds everything needed to process one inbound TGP message:
// the replay cache, the capability set the verifier consults, and the
// envelope-builder options. It is safe for concurrent use by multiple
// transport goroutines.
type Router struct {
	Replay   *replay.Cache
	Verifier *verify.Verifier
	Envelope envelope.Options
	Log      *logrus.Entry

	// previewed tracks DIRECT-mode QUERYs that have already produced an
	// offer, keyed by payment_profile+party+verb+from+to, so an
	// identical resubmission advances to allow. This is router-local
	// state, not a persisted session: entries are never written back to
	// any external store.
	mu        sync.Mutex
	previewed map[string]struct{}
}

// New constructs a Router. log may be nil, in which case a disabled
// logger is used.
func New(cache *replay.Cache, caps capability.Set, envOpts envelope.Options, log *logrus.Entry) *Router {
	if log == nil {
		l := logrus.New()
		l.SetOutput(noopWriter{})
		log = logrus.NewEntry(l)
	}
	return &Router{
		Replay:    cache,
		Verifier:  verify.New(caps),
		Envelope:  envOpts,
		Log:       log,
		previewed: make(map[string]struct{}),
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Route runs the full pipeline over one raw inbound message and returns
// the serialized outbound message. It always returns exactly one
// message: never zero, never more.
func (r *Router) Route(ctx context.Context, raw []byte) []byte {
	msg := r.dispatch(ctx, raw)
	out, err := tgp.Encode(msg)
	if err != nil {
		// Encoding a well-formed internal struct should never fail; fall
		// back to a minimal hand-built error so the invariant of exactly
		// one outbound message still holds.
		r.Log.WithError(err).Error("failed to encode outbound message")
		return []byte(`{"type":"ERROR","code":"TBC_HTTP_DISPATCH_ERROR","message":"internal encoding failure"}`)
	}
	return out
}

func (r *Router) dispatch(ctx context.Context, raw []byte) tgp.Message {
	meta, msg, errMsg := tgp.Classify(raw)
	if errMsg != nil {
		r.Log.WithField("code", errMsg.Code).Debug("classify rejected message")
		return errMsg
	}

	if r.Replay != nil && r.Replay.CheckOrInsert(meta.MsgID) {
		return tgp.NewError(meta.MsgID, "REPLAY_DETECTED", "message id already seen").WithLayer(0).WithCorrelation(meta.CorrelationID)
	}

	if errMsg := tgp.Validate(msg); errMsg != nil {
		return errMsg
	}

	switch m := msg.(type) {
	case *tgp.Query:
		return r.handleQuery(ctx, m)
	case *tgp.Ack:
		return m
	case *tgp.Settle:
		return m
	case *tgp.ErrorMessage:
		return m
	default:
		return tgp.NewError(meta.MsgID, "UNSUPPORTED_TYPE", "unrecognized message kind reached dispatch")
	}
}

func (r *Router) handleQuery(ctx context.Context, q *tgp.Query) tgp.Message {
	result := r.Verifier.Run(ctx, q)
	if result.Failure != nil {
		return tgp.NewError(q.ID, result.Failure.Code, result.Failure.Message).
			WithLayer(result.Failure.Layer).
			WithCorrelation(q.CorrelationID)
	}

	if q.Intent.Mode == tgp.ModeDirect && !r.sawPreview(q) {
		return &tgp.Ack{Type: tgp.KindAck, ID: ackID(q.ID), CorrelationID: q.CorrelationID, Status: tgp.StatusOffer}
	}

	env, err := envelope.Build(q, result.Profile, r.Envelope)
	if err != nil {
		return tgp.NewError(q.ID, "TGP_ENVELOPE_FAILURE", err.Error()).WithLayer(5).WithCorrelation(q.CorrelationID)
	}

	return &tgp.Ack{Type: tgp.KindAck, ID: ackID(q.ID), CorrelationID: q.CorrelationID, Status: tgp.StatusAllow, Tx: env}
}

// sawPreview reports whether an equivalent DIRECT-mode QUERY has already
// produced an offer, and records this one if not. Equivalence is keyed
// on the economically meaningful fields of the intent, not the message
// id, since a client resubmits a QUERY to advance past preview.
func (r *Router) sawPreview(q *tgp.Query) bool {
	key := previewKey(q)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.previewed[key]; ok {
		return true
	}
	r.previewed[key] = struct{}{}
	return false
}

func previewKey(q *tgp.Query) string {
	return q.PaymentProfile + "|" + q.Intent.Party + "|" + q.Intent.Verb + "|" + q.From + "|" + q.To
}

func ackID(queryID string) string {
	return "ack-" + queryID
}
