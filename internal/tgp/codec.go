package tgp

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Metadata is extracted during the classify stage, before structural or
// semantic validation runs.
type Metadata struct {
	MsgID         string
	MsgType       Kind
	CorrelationID string
}

// Classify parses a raw JSON blob, extracts or synthesizes the message id,
// upper-cases the type tag, and binds the residual body to the
// kind-specific structure. On failure it returns a ready-to-emit
// ErrorMessage instead of an error, since classify failures never retry
// and always surface as a protocol-level ERROR.
func Classify(raw []byte) (*Metadata, Message, *ErrorMessage) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, NewError(freshID(), "INVALID_JSON", "request body is not valid JSON")
	}

	typRaw, ok := generic["type"]
	if !ok {
		return nil, nil, NewError(freshID(), "MISSING_TYPE", "message is missing required field: type")
	}
	var typStr string
	if err := json.Unmarshal(typRaw, &typStr); err != nil || strings.TrimSpace(typStr) == "" {
		return nil, nil, NewError(freshID(), "MISSING_TYPE", "message is missing required field: type")
	}
	kind := Kind(strings.ToUpper(strings.TrimSpace(typStr)))

	id := extractID(generic)
	correlation := extractString(generic, "correlation_id")

	meta := &Metadata{MsgID: id, MsgType: kind, CorrelationID: correlation}

	if kind == Forbidden {
		return meta, nil, NewError(id, "UNSUPPORTED_TYPE", "message type OFFER was removed in protocol v3.2").WithCorrelation(correlation)
	}

	switch kind {
	case KindQuery:
		var q Query
		if err := json.Unmarshal(raw, &q); err != nil {
			return meta, nil, NewError(id, "INVALID_JSON", "malformed QUERY body").WithCorrelation(correlation)
		}
		q.Type = KindQuery
		q.ID = id
		q.CorrelationID = correlation
		return meta, &q, nil

	case KindAck:
		var a Ack
		if err := json.Unmarshal(raw, &a); err != nil {
			return meta, nil, NewError(id, "INVALID_JSON", "malformed ACK body").WithCorrelation(correlation)
		}
		a.Type = KindAck
		a.ID = id
		a.CorrelationID = correlation
		a.Status = AckStatus(strings.ToLower(string(a.Status)))
		return meta, &a, nil

	case KindSettle:
		var s Settle
		if err := json.Unmarshal(raw, &s); err != nil {
			return meta, nil, NewError(id, "INVALID_JSON", "malformed SETTLE body").WithCorrelation(correlation)
		}
		s.Type = KindSettle
		s.ID = id
		s.CorrelationID = correlation
		return meta, &s, nil

	case KindError:
		var e ErrorMessage
		if err := json.Unmarshal(raw, &e); err != nil {
			return meta, nil, NewError(id, "INVALID_JSON", "malformed ERROR body").WithCorrelation(correlation)
		}
		e.Type = KindError
		e.ID = id
		e.CorrelationID = correlation
		return meta, &e, nil

	default:
		return meta, nil, NewError(id, "UNSUPPORTED_TYPE", "unsupported TGP message type: "+string(kind)).WithCorrelation(correlation)
	}
}

// Encode serializes a typed message deterministically. Field order is not
// guaranteed across encode/decode cycles, but value equality is.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func extractID(generic map[string]json.RawMessage) string {
	if idRaw, ok := generic["id"]; ok {
		var id string
		if err := json.Unmarshal(idRaw, &id); err == nil && strings.TrimSpace(id) != "" {
			return id
		}
	}
	return freshID()
}

func extractString(generic map[string]json.RawMessage, key string) string {
	raw, ok := generic[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func freshID() string {
	return uuid.New().String()
}
