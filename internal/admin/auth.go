package admin

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// MaxRequestAge bounds how old a signed admin request's timestamp may
// be. Timestamps in the future are rejected regardless of this bound.
const MaxRequestAge = 30 * time.Second

// Sentinel auth failures. These are stable error values so transports
// can map them to the HTTP status codes the control plane promises.
var (
	ErrUnauthorized    = errors.New("admin: unknown public key")
	ErrForbidden       = errors.New("admin: insufficient role")
	ErrAuthReplay      = errors.New("admin: request replay detected")
	ErrAuthExpired     = errors.New("admin: request timestamp too old")
	ErrAuthFutureTS    = errors.New("admin: request timestamp is in the future")
	ErrBadSignature    = errors.New("admin: signature verification failed")
	ErrBadPublicKey    = errors.New("admin: malformed public key hex")
	ErrBadSignatureHex = errors.New("admin: malformed signature hex")
)

// SignedRequest is the wire shape of a client's signed admin command.
type SignedRequest struct {
	PublicKey string          `json:"public_key"`
	Timestamp int64           `json:"timestamp"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	Signature string          `json:"signature"`
}

// CanonicalPayload reconstructs the exact byte sequence the client
// signed: "{timestamp}:{command}:{canonical_args_json}".
func (r *SignedRequest) CanonicalPayload() []byte {
	args := r.Args
	if len(args) == 0 {
		args = json.RawMessage("null")
	}
	return []byte(itoa(r.Timestamp) + ":" + r.Command + ":" + string(args))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Authenticator verifies signed admin requests against a roster and
// nonce log.
type Authenticator struct {
	Roster *Roster
	Nonces *NonceLog
	Now    func() time.Time
}

// NewAuthenticator constructs an Authenticator using time.Now as its clock.
func NewAuthenticator(roster *Roster, nonces *NonceLog) *Authenticator {
	return &Authenticator{Roster: roster, Nonces: nonces, Now: time.Now}
}

// Authenticate runs the full admin auth sequence from spec §4.H steps
// 1-4: timestamp window check, nonce replay check, roster lookup, and
// Ed25519 signature verification. On success it returns the
// authenticated Admin and touches its LastSeen.
func (a *Authenticator) Authenticate(req *SignedRequest) (*Admin, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	nowT := now()

	age := nowT.Sub(time.Unix(req.Timestamp, 0))
	if req.Timestamp > nowT.Unix() {
		return nil, ErrAuthFutureTS
	}
	if age > MaxRequestAge {
		return nil, ErrAuthExpired
	}

	if a.Nonces.CheckOrInsert(req.PublicKey, req.Timestamp) {
		return nil, ErrAuthReplay
	}

	admin, ok := a.Roster.Lookup(req.PublicKey)
	if !ok {
		return nil, ErrUnauthorized
	}

	pubKey, err := hex.DecodeString(req.PublicKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return nil, ErrBadPublicKey
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, ErrBadSignatureHex
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), req.CanonicalPayload(), sig) {
		return nil, ErrBadSignature
	}

	a.Roster.Touch(req.PublicKey, nowT)
	return admin, nil
}

// Sign produces the hex signature for a request over its canonical
// payload using priv. Used by tbc-admin and by tests.
func Sign(priv ed25519.PrivateKey, req *SignedRequest) string {
	sig := ed25519.Sign(priv, req.CanonicalPayload())
	return hex.EncodeToString(sig)
}
