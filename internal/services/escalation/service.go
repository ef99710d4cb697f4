package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
)

const defaultAlertTemplate = "{user}, your message violated the group rules. Strike recorded."

// Enforcer is the chat-platform boundary. Implementations live outside the
// core; failures here are logged and never roll back the ledger.
type Enforcer interface {
	Mute(ctx context.Context, groupID, userID string, duration time.Duration) error
	Kick(ctx context.Context, groupID, userID string) error
	Ban(ctx context.Context, groupID, userID string) error
	SendMessage(ctx context.Context, groupID, text string) (int, error)
	DeleteMessage(ctx context.Context, groupID string, messageID int) error
}

type Ledger interface {
	Reset(ctx context.Context, groupID, userID string) error
}

type AuditLog interface {
	Append(ctx context.Context, groupID, userID string, payload json.RawMessage, at time.Time) error
}

// Decision is the single most severe applicable action for a strike count.
type Decision struct {
	Action       enums.PenaltyAction
	Threshold    int
	MuteDuration time.Duration
}

type Config struct {
	AlertTemplate   string
	AlertAutoDelete time.Duration
}

type Service struct {
	enforcer Enforcer
	ledger   Ledger
	audit    AuditLog
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(enforcer Enforcer, ledger Ledger, audit AuditLog, cfg Config, logger *zap.Logger) *Service {
	if cfg.AlertTemplate == "" {
		cfg.AlertTemplate = defaultAlertTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		enforcer: enforcer,
		ledger:   ledger,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate collects every enabled tier whose threshold the count satisfies and
// selects the one with the highest threshold. Equal thresholds break toward
// the harsher action.
func Evaluate(count int, policy model.GroupPenaltyPolicy) (Decision, bool) {
	type candidate struct {
		action enums.PenaltyAction
		level  int
	}

	candidates := make([]candidate, 0, 4)
	if policy.AlertLevel > 0 && policy.AlertLevel <= count {
		candidates = append(candidates, candidate{enums.ActionAlert, policy.AlertLevel})
	}
	if policy.MuteLevel > 0 && policy.MuteLevel <= count {
		candidates = append(candidates, candidate{enums.ActionMute, policy.MuteLevel})
	}
	if policy.KickLevel > 0 && policy.KickLevel <= count {
		candidates = append(candidates, candidate{enums.ActionKick, policy.KickLevel})
	}
	if policy.BanLevel > 0 && policy.BanLevel <= count {
		candidates = append(candidates, candidate{enums.ActionBan, policy.BanLevel})
	}
	if len(candidates) == 0 {
		return Decision{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.level > best.level || (c.level == best.level && c.action.Severity() > best.action.Severity()) {
			best = c
		}
	}

	decision := Decision{Action: best.action, Threshold: best.level}
	if best.action == enums.ActionMute {
		decision.MuteDuration = time.Duration(policy.MuteDurationMinutes) * time.Minute
	}
	return decision, true
}

// Execute performs the decided enforcement, records the penalty and resets
// the ledger after an expulsion. The strike increment is already committed
// when this runs: an enforcement failure is logged and does not roll anything
// back, the ledger stays authoritative.
func (s *Service) Execute(ctx context.Context, groupID, userID, userMention string, strikeCount int, decision Decision) error {
	if s.enforcer == nil || s.audit == nil {
		return fmt.Errorf("escalation dependencies are not configured")
	}

	if err := s.enforce(ctx, groupID, userID, userMention, decision); err != nil {
		s.logger.Warn("enforcement error",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.String("action", string(decision.Action)),
			zap.Error(err),
		)
	}

	payload, err := model.EncodePayload(model.PenaltyPayload{
		Type:            enums.EventPenalty,
		Action:          decision.Action,
		Severity:        decision.Action.Severity(),
		ExecutedBy:      enums.ExecutorAutoModerator,
		StrikeCount:     strikeCount,
		DurationMinutes: int(decision.MuteDuration / time.Minute),
	})
	if err != nil {
		return err
	}
	if err := s.audit.Append(ctx, groupID, userID, payload, s.now().UTC()); err != nil {
		return err
	}

	if decision.Action.IsExpulsion() && s.ledger != nil {
		if err := s.ledger.Reset(ctx, groupID, userID); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) enforce(ctx context.Context, groupID, userID, userMention string, decision Decision) error {
	switch decision.Action {
	case enums.ActionAlert:
		return s.sendAlert(ctx, groupID, userMention)
	case enums.ActionMute:
		return s.enforcer.Mute(ctx, groupID, userID, decision.MuteDuration)
	case enums.ActionKick:
		return s.enforcer.Kick(ctx, groupID, userID)
	case enums.ActionBan:
		return s.enforcer.Ban(ctx, groupID, userID)
	default:
		return fmt.Errorf("unsupported penalty action %q", decision.Action)
	}
}

func (s *Service) sendAlert(ctx context.Context, groupID, userMention string) error {
	text := strings.ReplaceAll(s.cfg.AlertTemplate, "{user}", userMention)

	messageID, err := s.enforcer.SendMessage(ctx, groupID, text)
	if err != nil {
		return err
	}

	if s.cfg.AlertAutoDelete > 0 && messageID != 0 {
		delay := s.cfg.AlertAutoDelete
		go func() {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			<-timer.C
			deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.enforcer.DeleteMessage(deleteCtx, groupID, messageID); err != nil {
				s.logger.Warn("delete alert message", zap.String("group_id", groupID), zap.Error(err))
			}
		}()
	}

	return nil
}
