package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/enums"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
	pgrepo "github.com/hmcelik/telegram-moderator-bot-sub001/internal/repo/postgres"
)

type fakeStore struct {
	records []model.AuditRecord

	lastOffset int
	lastLimit  int
	lastFilter pgrepo.AuditFilter
}

func (f *fakeStore) Append(_ context.Context, groupID, userID string, payload json.RawMessage, at time.Time) error {
	f.records = append(f.records, model.AuditRecord{
		ID:        int64(len(f.records) + 1),
		GroupID:   groupID,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: at,
	})
	return nil
}

func (f *fakeStore) Query(_ context.Context, filter pgrepo.AuditFilter, offset, limit int) ([]model.AuditRecord, int, error) {
	f.lastFilter = filter
	f.lastOffset = offset
	f.lastLimit = limit

	total := len(f.records)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return f.records[offset:end], total, nil
}

func record(id int64, at time.Time, raw string) model.AuditRecord {
	return model.AuditRecord{
		ID:        id,
		GroupID:   "g1",
		UserID:    "u1",
		Payload:   json.RawMessage(raw),
		CreatedAt: at,
	}
}

func TestQueryClampsLimit(t *testing.T) {
	store := &fakeStore{}
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		store.records = append(store.records, record(int64(i+1), at, `{"type":"SCANNED","spamScore":0.1}`))
	}
	s := NewService(store)

	result, err := s.Query(context.Background(), QueryParams{Page: 1, Limit: 500})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Limit != 200 {
		t.Fatalf("limit=%d want 200", result.Limit)
	}
	if store.lastLimit != 200 {
		t.Fatalf("store queried with limit=%d want 200", store.lastLimit)
	}
	if len(result.Rows) != 200 || result.Total != 250 {
		t.Fatalf("rows=%d total=%d", len(result.Rows), result.Total)
	}
	if !result.HasNext || result.HasPrev {
		t.Fatalf("pagination flags wrong: next=%v prev=%v", result.HasNext, result.HasPrev)
	}
}

func TestQueryPaginationDefaultsAndOffsets(t *testing.T) {
	store := &fakeStore{}
	at := time.Now().UTC()
	for i := 0; i < 120; i++ {
		store.records = append(store.records, record(int64(i+1), at, `{"type":"SCANNED"}`))
	}
	s := NewService(store)

	result, err := s.Query(context.Background(), QueryParams{Page: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Limit != 50 || result.Page != 2 {
		t.Fatalf("page=%d limit=%d", result.Page, result.Limit)
	}
	if store.lastOffset != 50 {
		t.Fatalf("offset=%d want 50", store.lastOffset)
	}
	if !result.HasNext || !result.HasPrev {
		t.Fatalf("pagination flags wrong: next=%v prev=%v", result.HasNext, result.HasPrev)
	}

	// Page zero means page one.
	result, err = s.Query(context.Background(), QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Page != 1 || result.HasPrev {
		t.Fatalf("page=%d prev=%v", result.Page, result.HasPrev)
	}
}

func TestQueryRejectsInvalidParams(t *testing.T) {
	s := NewService(&fakeStore{})

	if _, err := s.Query(context.Background(), QueryParams{Page: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative page: %v", err)
	}
	if _, err := s.Query(context.Background(), QueryParams{Limit: -5}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative limit: %v", err)
	}

	start := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	if _, err := s.Query(context.Background(), QueryParams{Start: &start, End: &end}); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted range: %v", err)
	}
}

func TestQueryMalformedPayloadBecomesUnknownRow(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []model.AuditRecord{
		record(1, at, `{"type":"VIOLATION","violationType":"SPAM","spamScore":0.9,"threshold":0.8}`),
		record(2, at, `{broken`),
	}}
	s := NewService(store)

	result, err := s.Query(context.Background(), QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows=%d want 2", len(result.Rows))
	}

	bad := result.Rows[1]
	if bad.Type != string(enums.EventUnknown) || bad.Action != "Parse error" {
		t.Fatalf("malformed row not contained: %+v", bad)
	}
	if bad.ID != 2 || bad.GroupID != "g1" {
		t.Fatalf("placeholder row must keep envelope fields: %+v", bad)
	}
}

func TestQueryFlattensLegacyRow(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []model.AuditRecord{
		record(1, at, `{"score":0.91,"action":"deleted","messageText":"buy now"}`),
	}}
	s := NewService(store)

	result, err := s.Query(context.Background(), QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	row := result.Rows[0]
	if row.Type != string(enums.EventViolation) {
		t.Fatalf("legacy row type=%q", row.Type)
	}
	if row.ViolationType != string(enums.ViolationSpam) || row.Action != string(enums.ActionDelete) {
		t.Fatalf("legacy normalization wrong: %+v", row)
	}
	if row.Score == nil || *row.Score != 0.91 {
		t.Fatalf("legacy score lost: %+v", row.Score)
	}
}

func TestExportCSVEscapesReason(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []model.AuditRecord{
		record(1, at, `{"type":"MANUAL_STRIKE_ADD","admin":{"id":7,"name":"Ada"},"amount":1,"reason":"Message with \"quotes\" and, commas"}`),
	}}
	s := NewService(store)
	s.now = func() time.Time { return at }

	artifact, err := s.Export(context.Background(), QueryParams{GroupID: "g1"}, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.ContentType != "text/csv" {
		t.Fatalf("content type %q", artifact.ContentType)
	}
	if artifact.Filename != "audit_export_g1_2024-06-01.csv" {
		t.Fatalf("filename %q", artifact.Filename)
	}

	content := string(artifact.Data)
	if !strings.HasPrefix(content, "ID,Timestamp,Group ID,User ID,Type,Action") {
		t.Fatalf("missing header: %q", content)
	}
	if !strings.Contains(content, `"Message with ""quotes"" and, commas"`) {
		t.Fatalf("reason not escaped: %q", content)
	}
}

func TestExportJSONFlattensRows(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []model.AuditRecord{
		record(1, at, `{"type":"PENALTY","action":"MUTE","severity":2,"executedBy":"AUTO_MODERATOR","strikeCount":2,"durationMinutes":60}`),
	}}
	s := NewService(store)
	s.now = func() time.Time { return at }

	artifact, err := s.Export(context.Background(), QueryParams{}, FormatJSON)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Filename != "audit_export_2024-06-01.json" {
		t.Fatalf("filename %q", artifact.Filename)
	}

	var rows []Row
	if err := json.Unmarshal(artifact.Data, &rows); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0].Action != string(enums.ActionMute) || rows[0].StrikeCount == nil || *rows[0].StrikeCount != 2 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestExportAppliesHardLimit(t *testing.T) {
	store := &fakeStore{}
	at := time.Now().UTC()
	store.records = append(store.records, record(1, at, `{"type":"SCANNED"}`))
	s := NewService(store)

	if _, err := s.Export(context.Background(), QueryParams{Limit: 999999}, FormatJSON); err != nil {
		t.Fatalf("export: %v", err)
	}
	if store.lastLimit != exportHardLimit {
		t.Fatalf("export limit=%d want %d", store.lastLimit, exportHardLimit)
	}
	if store.lastOffset != 0 {
		t.Fatalf("export must start at offset 0, got %d", store.lastOffset)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	s := NewService(&fakeStore{})
	if _, err := s.Export(context.Background(), QueryParams{}, "xlsx"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type fakeArtifactStore struct {
	filename    string
	contentType string
	data        []byte
}

func (f *fakeArtifactStore) Put(_ context.Context, filename, contentType string, data []byte) (string, error) {
	f.filename = filename
	f.contentType = contentType
	f.data = data
	return "https://storage.example/" + filename, nil
}

func TestExportToStorage(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []model.AuditRecord{
		record(1, at, `{"type":"SCANNED","spamScore":0.2}`),
	}}
	artifacts := &fakeArtifactStore{}

	s := NewService(store)
	s.now = func() time.Time { return at }
	s.AttachArtifactStore(artifacts)

	artifact, url, err := s.ExportToStorage(context.Background(), QueryParams{}, FormatCSV)
	if err != nil {
		t.Fatalf("export to storage: %v", err)
	}
	if url != "https://storage.example/audit_export_2024-06-01.csv" {
		t.Fatalf("url %q", url)
	}
	if artifacts.filename != artifact.Filename || len(artifacts.data) == 0 {
		t.Fatalf("artifact not uploaded: %+v", artifacts)
	}
}

func TestAppendEncodesPayload(t *testing.T) {
	store := &fakeStore{}
	s := NewService(store)

	err := s.Append(context.Background(), "g1", "u1", model.ScannedPayload{SpamScore: 0.3, MessageLength: 12})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("records=%d", len(store.records))
	}
	decoded, err := model.DecodePayload(store.records[0].Payload)
	if err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if _, ok := decoded.(model.ScannedPayload); !ok {
		t.Fatalf("stored payload is %T", decoded)
	}
}
