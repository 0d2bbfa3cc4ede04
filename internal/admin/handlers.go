package admin

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ExecResult is the full response body for POST /admin/exec.
type ExecResult struct {
	Success   bool   `json:"success"`
	Command   string `json:"command"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
	// HTTPStatus is not serialized; the transport reads it to set the
	// response status code.
	HTTPStatus int `json:"-"`
}

// Controller ties authentication and command dispatch together for the
// admin transport.
type Controller struct {
	Auth    *Authenticator
	Handler *Handler
	Log     *logrus.Entry
}

// NewController constructs a Controller. log may be nil, in which case a
// disabled logger is used.
func NewController(auth *Authenticator, handler *Handler, log *logrus.Entry) *Controller {
	if log == nil {
		l := logrus.New()
		l.SetOutput(noopWriter{})
		log = logrus.NewEntry(l)
	}
	return &Controller{Auth: auth, Handler: handler, Log: log}
}

// Exec runs the full admin request sequence from spec §4.H: parse (by
// the caller), authenticate, authorize by role, dispatch, and produce
// the result envelope with its associated HTTP status. Every accepted
// and rejected request is recorded with the admin's name (once known),
// the command, and the outcome.
func (c *Controller) Exec(req *SignedRequest) ExecResult {
	now := time.Now().Unix()
	command := NormalizeCommand(req.Command)

	admin, err := c.Auth.Authenticate(req)
	if err != nil {
		c.Log.WithFields(logrus.Fields{
			"command": command,
			"outcome": "rejected",
			"reason":  authErrorMessage(err),
		}).Warn("admin request rejected")
		return ExecResult{
			Success:    false,
			Command:    command,
			Error:      authErrorMessage(err),
			Timestamp:  now,
			HTTPStatus: authErrorStatus(err),
		}
	}

	logEntry := c.Log.WithFields(logrus.Fields{"admin": admin.Name, "command": command})

	required, known := RequiredRole(command)
	if !known {
		logEntry.WithField("outcome", "rejected").Warn("admin request rejected: unrecognized command")
		return ExecResult{Success: false, Command: command, Error: "unrecognized command", Timestamp: now, HTTPStatus: 400}
	}
	if !admin.Role.Satisfies(required) {
		logEntry.WithField("outcome", "rejected").Warn("admin request rejected: insufficient permissions")
		return ExecResult{Success: false, Command: command, Error: "insufficient permissions for this command", Timestamp: now, HTTPStatus: 403}
	}

	outcome := c.Handler.Dispatch(admin, command, req.Args)
	if !outcome.Success {
		logEntry.WithFields(logrus.Fields{"outcome": "rejected", "reason": outcome.Error}).Warn("admin request failed")
		return ExecResult{Success: false, Command: command, Error: outcome.Error, Timestamp: now, HTTPStatus: 500}
	}
	logEntry.WithField("outcome", "accepted").Info("admin request accepted")
	return ExecResult{Success: true, Command: command, Data: outcome.Data, Timestamp: now, HTTPStatus: 200}
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unknown admin public key"
	case errors.Is(err, ErrAuthReplay):
		return "request replay detected"
	case errors.Is(err, ErrAuthExpired):
		return "request timestamp too old"
	case errors.Is(err, ErrAuthFutureTS):
		return "request timestamp is in the future"
	case errors.Is(err, ErrBadSignature), errors.Is(err, ErrBadPublicKey), errors.Is(err, ErrBadSignatureHex):
		return "signature verification failed"
	default:
		return "authentication failed"
	}
}

func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrAuthReplay),
		errors.Is(err, ErrAuthExpired),
		errors.Is(err, ErrAuthFutureTS),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrBadPublicKey),
		errors.Is(err, ErrBadSignatureHex):
		return 401
	default:
		return 400
	}
}

// noopWriter discards everything written to it, for the disabled-logger
// fallback when no *logrus.Entry is supplied.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// ParseSignedRequest decodes a raw JSON body into a SignedRequest.
func ParseSignedRequest(raw []byte) (*SignedRequest, error) {
	var req SignedRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
