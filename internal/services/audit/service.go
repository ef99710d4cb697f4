package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
	pgrepo "github.com/hmcelik/telegram-moderator-bot-sub001/internal/repo/postgres"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	exportHardLimit  = 10000

	FormatCSV  = "csv"
	FormatJSON = "json"
)

var ErrValidation = errors.New("validation error")

// Store is the audit log persistence contract.
type Store interface {
	Append(ctx context.Context, groupID, userID string, payload json.RawMessage, at time.Time) error
	Query(ctx context.Context, filter pgrepo.AuditFilter, offset, limit int) ([]model.AuditRecord, int, error)
}

// ArtifactStore keeps generated export files and hands out download URLs.
type ArtifactStore interface {
	Put(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// QueryParams narrows a paginated query. Type supports the AUTO pseudo-value
// (anything not beginning with MANUAL, legacy rows included) or an exact
// payload type.
type QueryParams struct {
	GroupID string
	UserID  string
	Type    string
	Start   *time.Time
	End     *time.Time
	Page    int
	Limit   int
}

// Row is one audit entry flattened for presentation. Legacy automatic rows
// surface as a spam violation with a DELETE action so both schemas read the
// same way.
type Row struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	GroupID       string    `json:"groupId"`
	UserID        string    `json:"userId"`
	Type          string    `json:"type"`
	Action        string    `json:"action,omitempty"`
	ViolationType string    `json:"violationType,omitempty"`
	Score         *float64  `json:"score,omitempty"`
	Threshold     *float64  `json:"threshold,omitempty"`
	StrikeCount   *int      `json:"strikeCount,omitempty"`
	ExecutedBy    string    `json:"executedBy,omitempty"`
	AdminID       int64     `json:"adminId,omitempty"`
	AdminName     string    `json:"adminName,omitempty"`
	AdminUsername string    `json:"adminUsername,omitempty"`
	Amount        int       `json:"amount,omitempty"`
	Count         *int      `json:"count,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	MessageLength int       `json:"messageLength,omitempty"`
}

type QueryResult struct {
	Rows    []Row
	Total   int
	Page    int
	Limit   int
	HasNext bool
	HasPrev bool
}

// Artifact is a rendered export file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Service struct {
	store     Store
	artifacts ArtifactStore
	now       func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

func (s *Service) AttachArtifactStore(store ArtifactStore) {
	s.artifacts = store
}

// Append records one immutable audit event.
func (s *Service) Append(ctx context.Context, groupID, userID string, payload model.Payload) error {
	if s.store == nil {
		return fmt.Errorf("audit store is nil")
	}
	if groupID == "" || userID == "" {
		return ErrValidation
	}

	raw, err := model.EncodePayload(payload)
	if err != nil {
		return err
	}
	return s.store.Append(ctx, groupID, userID, raw, s.now().UTC())
}

// Query returns one page of decoded rows, newest first, with pagination
// metadata derived from the true row count. A row whose payload cannot be
// decoded becomes an UNKNOWN placeholder instead of failing the batch.
func (s *Service) Query(ctx context.Context, params QueryParams) (QueryResult, error) {
	if s.store == nil {
		return QueryResult{}, fmt.Errorf("audit store is nil")
	}

	page, limit, err := normalizePagination(params.Page, params.Limit)
	if err != nil {
		return QueryResult{}, err
	}
	if params.Start != nil && params.End != nil && params.End.Before(*params.Start) {
		return QueryResult{}, ErrValidation
	}

	records, total, err := s.store.Query(ctx, filterFrom(params), (page-1)*limit, limit)
	if err != nil {
		return QueryResult{}, err
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, buildRow(rec))
	}

	return QueryResult{
		Rows:    rows,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: page*limit < total,
		HasPrev: page > 1,
	}, nil
}

// Export renders every matching row (up to a fixed hard limit) as a single
// CSV or JSON artifact with a date-stamped filename. No pagination metadata.
func (s *Service) Export(ctx context.Context, params QueryParams, format string) (Artifact, error) {
	if s.store == nil {
		return Artifact{}, fmt.Errorf("audit store is nil")
	}
	if format != FormatCSV && format != FormatJSON {
		return Artifact{}, ErrValidation
	}
	if params.Start != nil && params.End != nil && params.End.Before(*params.Start) {
		return Artifact{}, ErrValidation
	}

	records, _, err := s.store.Query(ctx, filterFrom(params), 0, exportHardLimit)
	if err != nil {
		return Artifact{}, err
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, buildRow(rec))
	}

	filename := exportFilename(params.GroupID, format, s.now().UTC())
	switch format {
	case FormatCSV:
		data, err := renderCSV(rows)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Filename: filename, ContentType: "text/csv", Data: data}, nil
	default:
		data, err := json.Marshal(rows)
		if err != nil {
			return Artifact{}, fmt.Errorf("marshal export rows: %w", err)
		}
		return Artifact{Filename: filename, ContentType: "application/json", Data: data}, nil
	}
}

// ExportToStorage renders the export and uploads it, returning a download URL.
func (s *Service) ExportToStorage(ctx context.Context, params QueryParams, format string) (Artifact, string, error) {
	artifact, err := s.Export(ctx, params, format)
	if err != nil {
		return Artifact{}, "", err
	}
	if s.artifacts == nil {
		return Artifact{}, "", fmt.Errorf("artifact store is not configured")
	}

	url, err := s.artifacts.Put(ctx, artifact.Filename, artifact.ContentType, artifact.Data)
	if err != nil {
		return Artifact{}, "", fmt.Errorf("store export artifact: %w", err)
	}
	return artifact, url, nil
}

func normalizePagination(page, limit int) (int, int, error) {
	if page < 0 || limit < 0 {
		return 0, 0, ErrValidation
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit, nil
}

func filterFrom(params QueryParams) pgrepo.AuditFilter {
	return pgrepo.AuditFilter{
		GroupID: params.GroupID,
		UserID:  params.UserID,
		Type:    params.Type,
		Start:   params.Start,
		End:     params.End,
	}
}

func buildRow(rec model.AuditRecord) Row {
	row := Row{
		ID:        rec.ID,
		Timestamp: rec.CreatedAt,
		GroupID:   rec.GroupID,
		UserID:    rec.UserID,
	}

	payload, err := model.DecodePayload(rec.Payload)
	if err != nil {
		row.Type = string(enums.EventUnknown)
		row.Action = "Parse error"
		return row
	}

	switch p := payload.(type) {
	case model.ScannedPayload:
		row.Type = string(enums.EventScanned)
		score := p.SpamScore
		row.Score = &score
		row.MessageLength = p.MessageLength
	case model.ViolationPayload:
		row.Type = string(enums.EventViolation)
		row.ViolationType = string(p.ViolationType)
		score := p.Score()
		threshold := p.Threshold
		row.Score = &score
		row.Threshold = &threshold
	case model.PenaltyPayload:
		row.Type = string(enums.EventPenalty)
		row.Action = string(p.Action)
		row.ExecutedBy = string(p.ExecutedBy)
		strikes := p.StrikeCount
		row.StrikeCount = &strikes
	case model.ManualStrikePayload:
		row.Type = string(p.Type)
		row.AdminID = p.Admin.ID
		row.AdminName = p.Admin.Name
		row.AdminUsername = p.Admin.Username
		row.Amount = p.Amount
		if p.Type == enums.EventManualStrikeSet {
			count := p.Count
			row.Count = &count
		}
		row.Reason = p.Reason
	case model.LegacyAutoPayload:
		violation := p.AsViolation()
		row.Type = string(enums.EventViolation)
		row.ViolationType = string(violation.ViolationType)
		row.Action = string(enums.ActionDelete)
		score := p.Score
		row.Score = &score
	}

	return row
}

var csvHeader = []string{
	"ID", "Timestamp", "Group ID", "User ID", "Type", "Action",
	"Violation Type", "Score", "Threshold", "Strike Count", "Executed By",
	"Admin ID", "Admin Name", "Admin Username", "Amount", "Count", "Reason",
}

func renderCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Timestamp.UTC().Format(time.RFC3339),
			row.GroupID,
			row.UserID,
			row.Type,
			row.Action,
			row.ViolationType,
			formatFloat(row.Score),
			formatFloat(row.Threshold),
			formatInt(row.StrikeCount),
			row.ExecutedBy,
			formatAdminID(row.AdminID),
			row.AdminName,
			row.AdminUsername,
			formatAmount(row.Amount),
			formatInt(row.Count),
			row.Reason,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatAdminID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func formatAmount(amount int) string {
	if amount == 0 {
		return ""
	}
	return strconv.Itoa(amount)
}

func exportFilename(groupID, format string, now time.Time) string {
	stamp := now.Format("2006-01-02")
	if groupID != "" {
		return fmt.Sprintf("audit_export_%s_%s.%s", groupID, stamp, format)
	}
	return fmt.Sprintf("audit_export_%s.%s", stamp, format)
}
