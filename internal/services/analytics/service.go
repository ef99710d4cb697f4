package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
	pgrepo "github.com/hmcelik/telegram-moderator-bot-sub001/internal/repo/postgres"
)

const (
	responseWindow       = 300 * time.Second
	topViolationTypes    = 5
	topRepeatOffenders   = 10
	defaultRankingLimit  = 10
	defaultActivityLimit = 10
)

var ErrValidation = errors.New("validation error")

// Store is the read-only audit log surface the engine aggregates over.
type Store interface {
	ListRange(ctx context.Context, groupID string, start, end time.Time) ([]model.AuditRecord, error)
	TopGroupsByDeletions(ctx context.Context, limit int) ([]pgrepo.GroupDeletions, error)
}

// StatsCache is an optional read-through cache for group stats.
type StatsCache interface {
	GetGroupStats(ctx context.Context, groupID string, start, end time.Time) (GroupStats, bool, error)
	SetGroupStats(ctx context.Context, groupID string, start, end time.Time, stats GroupStats) error
}

type FlaggedBreakdown struct {
	Total     int `json:"total"`
	Spam      int `json:"spam"`
	Profanity int `json:"profanity"`
}

type ViolationTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type EfficiencySummary struct {
	MessagesScanned    int `json:"messagesScanned"`
	ViolationsDetected int `json:"violationsDetected"`
	UsersActioned      int `json:"usersActioned"`
}

type GroupStats struct {
	TotalMessages     int                  `json:"totalMessages"`
	Flagged           FlaggedBreakdown     `json:"flagged"`
	Deleted           int                  `json:"deleted"`
	MutedUsers        int                  `json:"mutedUsers"`
	KickedUsers       int                  `json:"kickedUsers"`
	BannedUsers       int                  `json:"bannedUsers"`
	AverageScore      float64              `json:"averageScore"`
	FlaggedRate       float64              `json:"flaggedRate"`
	TopViolationTypes []ViolationTypeCount `json:"topViolationTypes"`
	Efficiency        EfficiencySummary    `json:"efficiency"`
}

type UserActivity struct {
	UserID       string  `json:"userId"`
	Scanned      int     `json:"scanned"`
	Violations   int     `json:"violations"`
	Penalties    int     `json:"penalties"`
	AverageScore float64 `json:"averageScore"`
}

type PatternBucket struct {
	Scanned    int `json:"scanned"`
	Violations int `json:"violations"`
}

// ActivityPatterns holds sparse buckets: hours and days without events are
// omitted, not zero-filled.
type ActivityPatterns struct {
	Hourly map[int]PatternBucket    `json:"hourly"`
	Daily  map[string]PatternBucket `json:"daily"`
}

type RepeatOffender struct {
	UserID       string  `json:"userId"`
	Violations   int     `json:"violations"`
	ActiveDays   int     `json:"activeDays"`
	AverageScore float64 `json:"averageScore"`
}

type Effectiveness struct {
	TotalViolations     int              `json:"totalViolations"`
	MatchedPairs        int              `json:"matchedPairs"`
	AvgResponseSeconds  float64          `json:"avgResponseSeconds"`
	EffectivenessScore  float64          `json:"effectivenessScore"`
	RepeatOffenders     []RepeatOffender `json:"repeatOffenders"`
	RepeatOffenderCount int              `json:"repeatOffenderCount"`
}

type GroupDeletionRank struct {
	GroupID   string `json:"groupId"`
	Deletions int    `json:"deletions"`
}

type Service struct {
	store Store
	cache StatsCache
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) AttachCache(cache StatsCache) {
	s.cache = cache
}

// normalizedEvent is one audit row reduced to its aggregate-relevant facts.
// A legacy automatic row yields both a spam violation and a deletion penalty
// at the same instant.
type normalizedEvent struct {
	userID    string
	at        time.Time
	scanned   *model.ScannedPayload
	violation *model.ViolationPayload
	score     float64
	penalty   *model.PenaltyPayload
}

func normalize(records []model.AuditRecord) []normalizedEvent {
	events := make([]normalizedEvent, 0, len(records))
	for _, rec := range records {
		payload, err := model.DecodePayload(rec.Payload)
		if err != nil {
			// Malformed rows are contained to themselves; they simply
			// contribute nothing to aggregates.
			continue
		}

		ev := normalizedEvent{userID: rec.UserID, at: rec.CreatedAt}
		switch p := payload.(type) {
		case model.ScannedPayload:
			ev.scanned = &p
		case model.ViolationPayload:
			ev.violation = &p
			ev.score = p.Score()
		case model.PenaltyPayload:
			ev.penalty = &p
		case model.LegacyAutoPayload:
			violation := p.AsViolation()
			penalty := p.AsPenalty()
			ev.violation = &violation
			ev.penalty = &penalty
			ev.score = p.Score
		default:
			continue
		}
		events = append(events, ev)
	}
	return events
}

// GetGroupStats aggregates one group's window into totals, rates and the top
// violation types, merging both audit schemas.
func (s *Service) GetGroupStats(ctx context.Context, groupID string, start, end time.Time) (GroupStats, error) {
	if s.store == nil {
		return GroupStats{}, fmt.Errorf("analytics store is nil")
	}
	start, end, err := normalizeWindow(groupID, start, end)
	if err != nil {
		return GroupStats{}, err
	}

	if s.cache != nil {
		if stats, ok, cacheErr := s.cache.GetGroupStats(ctx, groupID, start, end); cacheErr == nil && ok {
			return stats, nil
		}
	}

	records, err := s.store.ListRange(ctx, groupID, start, end)
	if err != nil {
		return GroupStats{}, err
	}

	stats := computeGroupStats(normalize(records))

	if s.cache != nil {
		_ = s.cache.SetGroupStats(ctx, groupID, start, end, stats)
	}
	return stats, nil
}

func computeGroupStats(events []normalizedEvent) GroupStats {
	stats := GroupStats{TopViolationTypes: []ViolationTypeCount{}}

	typeCounts := map[string]int{}
	muted := map[string]struct{}{}
	kicked := map[string]struct{}{}
	banned := map[string]struct{}{}
	var scoreSum float64
	var scoredCount int

	for _, ev := range events {
		if ev.scanned != nil {
			stats.TotalMessages++
		}
		if ev.violation != nil {
			stats.Flagged.Total++
			switch ev.violation.ViolationType {
			case enums.ViolationProfanity:
				stats.Flagged.Profanity++
			default:
				stats.Flagged.Spam++
			}
			typeCounts[string(ev.violation.ViolationType)]++
			scoreSum += ev.score
			scoredCount++
		}
		if ev.penalty != nil {
			switch ev.penalty.Action {
			case enums.ActionDelete:
				stats.Deleted++
			case enums.ActionMute:
				muted[ev.userID] = struct{}{}
			case enums.ActionKick:
				kicked[ev.userID] = struct{}{}
			case enums.ActionBan:
				banned[ev.userID] = struct{}{}
			}
		}
	}

	stats.MutedUsers = len(muted)
	stats.KickedUsers = len(kicked)
	stats.BannedUsers = len(banned)
	if scoredCount > 0 {
		stats.AverageScore = scoreSum / float64(scoredCount)
	}
	if stats.TotalMessages > 0 {
		stats.FlaggedRate = round2(float64(stats.Flagged.Total) / float64(stats.TotalMessages) * 100)
	}

	for vt, count := range typeCounts {
		stats.TopViolationTypes = append(stats.TopViolationTypes, ViolationTypeCount{Type: vt, Count: count})
	}
	sort.Slice(stats.TopViolationTypes, func(i, j int) bool {
		a, b := stats.TopViolationTypes[i], stats.TopViolationTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(stats.TopViolationTypes) > topViolationTypes {
		stats.TopViolationTypes = stats.TopViolationTypes[:topViolationTypes]
	}

	// Distinct users per action are summed, not unioned: a user both muted
	// and later banned counts once in each bucket.
	stats.Efficiency = EfficiencySummary{
		MessagesScanned:    stats.TotalMessages,
		ViolationsDetected: stats.Flagged.Total,
		UsersActioned:      len(muted) + len(kicked) + len(banned),
	}

	return stats
}

// GetUserActivityStats ranks users by violation count inside the window.
func (s *Service) GetUserActivityStats(ctx context.Context, groupID string, start, end time.Time, limit int) ([]UserActivity, error) {
	if s.store == nil {
		return nil, fmt.Errorf("analytics store is nil")
	}
	start, end, err := normalizeWindow(groupID, start, end)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, ErrValidation
	}
	if limit == 0 {
		limit = defaultActivityLimit
	}

	records, err := s.store.ListRange(ctx, groupID, start, end)
	if err != nil {
		return nil, err
	}

	type userAgg struct {
		activity UserActivity
		scoreSum float64
		scored   int
	}
	byUser := map[string]*userAgg{}
	get := func(userID string) *userAgg {
		agg, ok := byUser[userID]
		if !ok {
			agg = &userAgg{activity: UserActivity{UserID: userID}}
			byUser[userID] = agg
		}
		return agg
	}

	for _, ev := range normalize(records) {
		agg := get(ev.userID)
		if ev.scanned != nil {
			agg.activity.Scanned++
		}
		if ev.violation != nil {
			agg.activity.Violations++
			agg.scoreSum += ev.score
			agg.scored++
		}
		if ev.penalty != nil {
			agg.activity.Penalties++
		}
	}

	result := make([]UserActivity, 0, len(byUser))
	for _, agg := range byUser {
		if agg.scored > 0 {
			agg.activity.AverageScore = agg.scoreSum / float64(agg.scored)
		}
		result = append(result, agg.activity)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Violations != result[j].Violations {
			return result[i].Violations > result[j].Violations
		}
		return result[i].UserID < result[j].UserID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetActivityPatterns buckets scans and violations by hour of day and by day.
func (s *Service) GetActivityPatterns(ctx context.Context, groupID string, start, end time.Time) (ActivityPatterns, error) {
	if s.store == nil {
		return ActivityPatterns{}, fmt.Errorf("analytics store is nil")
	}
	start, end, err := normalizeWindow(groupID, start, end)
	if err != nil {
		return ActivityPatterns{}, err
	}

	records, err := s.store.ListRange(ctx, groupID, start, end)
	if err != nil {
		return ActivityPatterns{}, err
	}

	patterns := ActivityPatterns{
		Hourly: map[int]PatternBucket{},
		Daily:  map[string]PatternBucket{},
	}
	for _, ev := range normalize(records) {
		if ev.scanned == nil && ev.violation == nil {
			continue
		}

		hour := ev.at.UTC().Hour()
		day := ev.at.UTC().Format("2006-01-02")
		hb := patterns.Hourly[hour]
		db := patterns.Daily[day]
		if ev.scanned != nil {
			hb.Scanned++
			db.Scanned++
		}
		if ev.violation != nil {
			hb.Violations++
			db.Violations++
		}
		patterns.Hourly[hour] = hb
		patterns.Daily[day] = db
	}

	return patterns, nil
}

// GetModerationEffectiveness pairs violations with the next penalty for the
// same user inside a 300-second window and derives a 0-100 score from the
// average response time. Unmatched violations count toward totals but never
// toward the average.
func (s *Service) GetModerationEffectiveness(ctx context.Context, groupID string, start, end time.Time) (Effectiveness, error) {
	if s.store == nil {
		return Effectiveness{}, fmt.Errorf("analytics store is nil")
	}
	start, end, err := normalizeWindow(groupID, start, end)
	if err != nil {
		return Effectiveness{}, err
	}

	records, err := s.store.ListRange(ctx, groupID, start, end)
	if err != nil {
		return Effectiveness{}, err
	}
	events := normalize(records)

	result := Effectiveness{RepeatOffenders: []RepeatOffender{}}

	type violationRef struct {
		at time.Time
	}
	pendingByUser := map[string][]violationRef{}
	var responseSum time.Duration

	for _, ev := range events {
		if ev.violation != nil {
			result.TotalViolations++
			pendingByUser[ev.userID] = append(pendingByUser[ev.userID], violationRef{at: ev.at})
		}
		if ev.penalty != nil {
			pending := pendingByUser[ev.userID]
			for i, v := range pending {
				if ev.at.Before(v.at) {
					continue
				}
				if ev.at.Sub(v.at) > responseWindow {
					continue
				}
				result.MatchedPairs++
				responseSum += ev.at.Sub(v.at)
				pendingByUser[ev.userID] = append(pending[:i], pending[i+1:]...)
				break
			}
		}
	}

	if result.MatchedPairs > 0 {
		result.AvgResponseSeconds = responseSum.Seconds() / float64(result.MatchedPairs)
		result.EffectivenessScore = math.Max(0, 100-(result.AvgResponseSeconds/60)*10)
	}

	type offenderAgg struct {
		violations int
		days       map[string]struct{}
		scoreSum   float64
	}
	byUser := map[string]*offenderAgg{}
	for _, ev := range events {
		if ev.violation == nil {
			continue
		}
		agg, ok := byUser[ev.userID]
		if !ok {
			agg = &offenderAgg{days: map[string]struct{}{}}
			byUser[ev.userID] = agg
		}
		agg.violations++
		agg.days[ev.at.UTC().Format("2006-01-02")] = struct{}{}
		agg.scoreSum += ev.score
	}

	offenders := make([]RepeatOffender, 0, len(byUser))
	for userID, agg := range byUser {
		if agg.violations <= 1 {
			continue
		}
		offenders = append(offenders, RepeatOffender{
			UserID:       userID,
			Violations:   agg.violations,
			ActiveDays:   len(agg.days),
			AverageScore: agg.scoreSum / float64(agg.violations),
		})
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Violations != offenders[j].Violations {
			return offenders[i].Violations > offenders[j].Violations
		}
		return offenders[i].UserID < offenders[j].UserID
	})
	result.RepeatOffenderCount = len(offenders)
	if len(offenders) > topRepeatOffenders {
		offenders = offenders[:topRepeatOffenders]
	}
	result.RepeatOffenders = offenders

	return result, nil
}

// GetTopGroupsByDeletions ranks all groups by merged new+legacy deletions.
func (s *Service) GetTopGroupsByDeletions(ctx context.Context, limit int) ([]GroupDeletionRank, error) {
	if s.store == nil {
		return nil, fmt.Errorf("analytics store is nil")
	}
	if limit < 0 {
		return nil, ErrValidation
	}
	if limit == 0 {
		limit = defaultRankingLimit
	}

	ranked, err := s.store.TopGroupsByDeletions(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := make([]GroupDeletionRank, 0, len(ranked))
	for _, item := range ranked {
		result = append(result, GroupDeletionRank{GroupID: item.GroupID, Deletions: item.Deletions})
	}
	return result, nil
}

func normalizeWindow(groupID string, start, end time.Time) (time.Time, time.Time, error) {
	if groupID == "" {
		return time.Time{}, time.Time{}, ErrValidation
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if !start.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, ErrValidation
	}
	return start.UTC(), end.UTC(), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
