package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
)

// AuditRecord is one immutable row of the audit log as stored: the payload
// stays raw until a consumer decodes it, so a malformed payload can be
// contained to its own row.
type AuditRecord struct {
	ID        int64
	GroupID   string
	UserID    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Payload is the decoded tagged variant of an audit row.
type Payload interface {
	EventType() enums.EventType
}

// AdminRef identifies the admin behind a manual ledger mutation.
type AdminRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type ScannedPayload struct {
	Type           enums.EventType `json:"type"`
	SpamScore      float64         `json:"spamScore"`
	ProfanityScore float64         `json:"profanityScore"`
	MessageLength  int             `json:"messageLength"`
}

func (ScannedPayload) EventType() enums.EventType { return enums.EventScanned }

type ViolationPayload struct {
	Type           enums.EventType     `json:"type"`
	ViolationType  enums.ViolationType `json:"violationType"`
	SpamScore      float64             `json:"spamScore"`
	ProfanityScore float64             `json:"profanityScore"`
	Threshold      float64             `json:"threshold"`
}

func (ViolationPayload) EventType() enums.EventType { return enums.EventViolation }

// Score returns the score of the dimension that was violated.
func (p ViolationPayload) Score() float64 {
	if p.ViolationType == enums.ViolationProfanity {
		return p.ProfanityScore
	}
	return p.SpamScore
}

type PenaltyPayload struct {
	Type            enums.EventType     `json:"type"`
	Action          enums.PenaltyAction `json:"action"`
	Severity        int                 `json:"severity"`
	ExecutedBy      enums.ExecutedBy    `json:"executedBy"`
	StrikeCount     int                 `json:"strikeCount"`
	DurationMinutes int                 `json:"durationMinutes,omitempty"`
}

func (PenaltyPayload) EventType() enums.EventType { return enums.EventPenalty }

// ManualStrikePayload covers the three admin mutations. Amount carries the
// delta for add/remove; Count carries the absolute value for set.
type ManualStrikePayload struct {
	Type   enums.EventType `json:"type"`
	Admin  AdminRef        `json:"admin"`
	Amount int             `json:"amount,omitempty"`
	Count  int             `json:"count"`
	Reason string          `json:"reason,omitempty"`
}

func (p ManualStrikePayload) EventType() enums.EventType { return p.Type }

// LegacyAutoPayload is the pre-tag flat schema: an automatic spam deletion
// with a single classification score.
type LegacyAutoPayload struct {
	Score       float64 `json:"score"`
	Action      string  `json:"action,omitempty"`
	MessageText string  `json:"messageText,omitempty"`
}

func (LegacyAutoPayload) EventType() enums.EventType { return enums.EventLegacyAuto }

// AsViolation normalizes the legacy row to its enhanced-schema equivalent: a
// spam violation carrying the single legacy score.
func (p LegacyAutoPayload) AsViolation() ViolationPayload {
	return ViolationPayload{
		Type:          enums.EventViolation,
		ViolationType: enums.ViolationSpam,
		SpamScore:     p.Score,
	}
}

// AsPenalty normalizes the implicit legacy deletion.
func (p LegacyAutoPayload) AsPenalty() PenaltyPayload {
	return PenaltyPayload{
		Type:       enums.EventPenalty,
		Action:     enums.ActionDelete,
		ExecutedBy: enums.ExecutorAutoModerator,
	}
}

type payloadTag struct {
	Type enums.EventType `json:"type"`
}

// DecodePayload parses a stored payload into its tagged variant. A missing or
// empty type means the legacy flat schema. An unrecognized type or malformed
// JSON is a decode error the caller contains to the row.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty audit payload")
	}

	var tag payloadTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode audit payload tag: %w", err)
	}

	switch tag.Type {
	case enums.EventLegacyAuto:
		var p LegacyAutoPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode legacy payload: %w", err)
		}
		return p, nil
	case enums.EventScanned:
		var p ScannedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode scanned payload: %w", err)
		}
		return p, nil
	case enums.EventViolation:
		var p ViolationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode violation payload: %w", err)
		}
		return p, nil
	case enums.EventPenalty:
		var p PenaltyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode penalty payload: %w", err)
		}
		return p, nil
	case enums.EventManualStrikeAdd, enums.EventManualStrikeRemove, enums.EventManualStrikeSet:
		var p ManualStrikePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode manual strike payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown audit payload type %q", tag.Type)
	}
}

// EncodePayload marshals a variant for storage, ensuring the tag is set.
func EncodePayload(p Payload) (json.RawMessage, error) {
	switch v := p.(type) {
	case ScannedPayload:
		v.Type = enums.EventScanned
		p = v
	case ViolationPayload:
		v.Type = enums.EventViolation
		p = v
	case PenaltyPayload:
		v.Type = enums.EventPenalty
		p = v
	case ManualStrikePayload:
		switch v.Type {
		case enums.EventManualStrikeAdd, enums.EventManualStrikeRemove, enums.EventManualStrikeSet:
		default:
			return nil, fmt.Errorf("manual strike payload has invalid type %q", v.Type)
		}
	case LegacyAutoPayload:
	default:
		return nil, fmt.Errorf("unsupported audit payload %T", p)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return raw, nil
}
