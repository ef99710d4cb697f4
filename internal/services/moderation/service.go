package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/escalation"
)

var ErrValidation = errors.New("validation error")

// Classifier scores a message against one set of context keywords. The
// implementation is an external capability.
type Classifier interface {
	Classify(ctx context.Context, text string, contextKeywords []string) (float64, error)
}

// SettingsProvider resolves the moderation settings of a group. Supplied by
// the surrounding settings layer.
type SettingsProvider interface {
	SettingsFor(ctx context.Context, groupID string) (GroupSettings, error)
}

type GroupSettings struct {
	SpamThreshold      float64
	ProfanityThreshold float64
	SpamKeywords       []string
	ProfanityKeywords  []string
	Policy             model.GroupPenaltyPolicy
}

type StrikeLedger interface {
	RecordStrike(ctx context.Context, groupID, userID string, violation model.Payload) (int, error)
}

type AuditLog interface {
	Append(ctx context.Context, groupID, userID string, payload model.Payload) error
}

type Escalator interface {
	Execute(ctx context.Context, groupID, userID, userMention string, strikeCount int, decision escalation.Decision) error
}

// IncomingMessage is one group message handed to the pipeline by the
// transport layer.
type IncomingMessage struct {
	GroupID     string
	UserID      string
	UserMention string
	MessageID   int
	Text        string
}

// Outcome reports what the pipeline did with a message.
type Outcome struct {
	SpamScore      float64
	ProfanityScore float64
	Violation      *enums.ViolationType
	StrikeCount    int
	Action         *enums.PenaltyAction
}

type Service struct {
	classifier Classifier
	settings   SettingsProvider
	ledger     StrikeLedger
	audit      AuditLog
	escalator  Escalator
	enforcer   escalation.Enforcer
	logger     *zap.Logger
	now        func() time.Time
}

type Dependencies struct {
	Classifier Classifier
	Settings   SettingsProvider
	Ledger     StrikeLedger
	Audit      AuditLog
	Escalator  Escalator
	Enforcer   escalation.Enforcer
}

func NewService(deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		classifier: deps.Classifier,
		settings:   deps.Settings,
		ledger:     deps.Ledger,
		audit:      deps.Audit,
		escalator:  deps.Escalator,
		enforcer:   deps.Enforcer,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessMessage runs one classified message through the whole chain: scan
// record, violation detection, message deletion, strike, escalation. The
// strike and its audit trail commit before enforcement runs; enforcement
// failures are logged and never undo the ledger.
func (s *Service) ProcessMessage(ctx context.Context, msg IncomingMessage) (Outcome, error) {
	if msg.GroupID == "" || msg.UserID == "" {
		return Outcome{}, ErrValidation
	}
	if s.classifier == nil || s.settings == nil || s.ledger == nil || s.audit == nil {
		return Outcome{}, fmt.Errorf("moderation pipeline dependencies are not configured")
	}

	settings, err := s.settings.SettingsFor(ctx, msg.GroupID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve group settings: %w", err)
	}

	spamScore, err := s.classifier.Classify(ctx, msg.Text, settings.SpamKeywords)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify spam: %w", err)
	}
	profanityScore, err := s.classifier.Classify(ctx, msg.Text, settings.ProfanityKeywords)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify profanity: %w", err)
	}

	outcome := Outcome{SpamScore: spamScore, ProfanityScore: profanityScore}

	if err := s.audit.Append(ctx, msg.GroupID, msg.UserID, model.ScannedPayload{
		Type:           enums.EventScanned,
		SpamScore:      spamScore,
		ProfanityScore: profanityScore,
		MessageLength:  len(msg.Text),
	}); err != nil {
		return Outcome{}, err
	}

	violation, threshold, flagged := detectViolation(spamScore, profanityScore, settings)
	if !flagged {
		return outcome, nil
	}
	outcome.Violation = &violation

	s.deleteMessage(ctx, msg)

	newCount, err := s.ledger.RecordStrike(ctx, msg.GroupID, msg.UserID, model.ViolationPayload{
		Type:           enums.EventViolation,
		ViolationType:  violation,
		SpamScore:      spamScore,
		ProfanityScore: profanityScore,
		Threshold:      threshold,
	})
	if err != nil {
		return Outcome{}, err
	}
	outcome.StrikeCount = newCount

	decision, ok := escalation.Evaluate(newCount, settings.Policy)
	if !ok || s.escalator == nil {
		return outcome, nil
	}
	outcome.Action = &decision.Action

	if err := s.escalator.Execute(ctx, msg.GroupID, msg.UserID, msg.UserMention, newCount, decision); err != nil {
		return Outcome{}, err
	}

	return outcome, nil
}

func detectViolation(spamScore, profanityScore float64, settings GroupSettings) (enums.ViolationType, float64, bool) {
	spamHit := settings.SpamThreshold > 0 && spamScore >= settings.SpamThreshold
	profanityHit := settings.ProfanityThreshold > 0 && profanityScore >= settings.ProfanityThreshold

	switch {
	case spamHit && profanityHit:
		// Both dimensions breached: attribute the strike to the stronger
		// relative excess.
		if profanityScore-settings.ProfanityThreshold > spamScore-settings.SpamThreshold {
			return enums.ViolationProfanity, settings.ProfanityThreshold, true
		}
		return enums.ViolationSpam, settings.SpamThreshold, true
	case spamHit:
		return enums.ViolationSpam, settings.SpamThreshold, true
	case profanityHit:
		return enums.ViolationProfanity, settings.ProfanityThreshold, true
	default:
		return "", 0, false
	}
}

// deleteMessage removes the violating message and records the deletion. Both
// are best effort relative to the strike that follows.
func (s *Service) deleteMessage(ctx context.Context, msg IncomingMessage) {
	if s.enforcer != nil && msg.MessageID != 0 {
		if err := s.enforcer.DeleteMessage(ctx, msg.GroupID, msg.MessageID); err != nil {
			s.logger.Warn("enforcement error",
				zap.String("group_id", msg.GroupID),
				zap.Int("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
	}

	if err := s.audit.Append(ctx, msg.GroupID, msg.UserID, model.PenaltyPayload{
		Type:       enums.EventPenalty,
		Action:     enums.ActionDelete,
		Severity:   enums.ActionDelete.Severity(),
		ExecutedBy: enums.ExecutorAutoModerator,
	}); err != nil {
		s.logger.Warn("append deletion audit event",
			zap.String("group_id", msg.GroupID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}
}
