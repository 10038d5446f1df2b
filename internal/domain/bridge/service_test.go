package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertBatch(ctx context.Context, docs []Document) error {
	args := m.Called(ctx, docs)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context, collection string) (int, error) {
	args := m.Called(ctx, collection)
	return args.Int(0), args.Error(1)
}

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(repo Repository, ceiling int) *Service {
	s := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), ceiling)
	s.now = func() time.Time { return fixedNow }
	return s
}

func patientsBody(t *testing.T, n int) []byte {
	t.Helper()
	patients := make([]map[string]any, n)
	for i := range patients {
		patients[i] = map[string]any{
			"externalId": fmt.Sprintf("P%04d", i),
			"name":       "Buddy",
			"ownerId":    "C1",
		}
	}
	body, err := json.Marshal(map[string]any{"patients": patients})
	require.NoError(t, err)
	return body
}

func TestService_Ingest_CeilingEnforced(t *testing.T) {
	repo := new(MockRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(docs []Document) bool {
		return len(docs) == DefaultWriteCeiling &&
			docs[0].ID == "P0000" &&
			docs[len(docs)-1].ID == "P0489"
	})).Return(nil).Once()

	s := newTestService(repo, DefaultWriteCeiling)
	res, err := s.Ingest(context.Background(), KindPatient, patientsBody(t, 600))
	require.NoError(t, err)

	assert.Equal(t, 490, res.Count)
	assert.Equal(t, 110, res.Remaining)
	repo.AssertExpectations(t)
}

func TestService_Ingest_CeilingNeverExceedsStoreLimit(t *testing.T) {
	s := newTestService(new(MockRepository), 10_000)
	assert.Equal(t, DefaultWriteCeiling, s.ceiling)
}

func TestService_Ingest_Idempotent(t *testing.T) {
	var batches [][]Document
	repo := new(MockRepository)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			batches = append(batches, args.Get(1).([]Document))
		}).
		Return(nil).Twice()

	s := newTestService(repo, DefaultWriteCeiling)
	body := patientsBody(t, 3)

	first, err := s.Ingest(context.Background(), KindPatient, body)
	require.NoError(t, err)
	second, err := s.Ingest(context.Background(), KindPatient, body)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, batches, 2)
	assert.Equal(t, batches[0], batches[1])
}

func TestService_Ingest_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		body string
	}{
		{name: "not json", kind: KindPatient, body: `not json`},
		{name: "missing field", kind: KindPatient, body: `{"clients": []}`},
		{name: "field is an object", kind: KindPatient, body: `{"patients": {"externalId": "1"}}`},
		{name: "field is null", kind: KindPatient, body: `{"patients": null}`},
		{name: "record without externalId", kind: KindPatient, body: `{"patients": [{"externalId": "1"}, {"name": "x"}]}`},
		{name: "record is a string", kind: KindClient, body: `{"clients": ["oops"]}`},
		{name: "bad birth date", kind: KindPatient, body: `{"patients": [{"externalId": "1", "birthDate": "01/02/2020"}]}`},
		{name: "event without start", kind: KindCalendarEvent, body: `{"events": [{"externalId": "A1"}]}`},
		{name: "events under wrong field", kind: KindCalendarEvent, body: `{"calendar": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			s := newTestService(repo, DefaultWriteCeiling)

			_, err := s.Ingest(context.Background(), tt.kind, []byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			repo.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Ingest_InvalidRecordBeyondCeilingRejectsBatch(t *testing.T) {
	repo := new(MockRepository)
	s := newTestService(repo, 2)

	body := `{"clients": [{"externalId": "1"}, {"externalId": "2"}, {"externalId": ""}]}`
	_, err := s.Ingest(context.Background(), KindClient, []byte(body))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	repo.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestService_Ingest_EmptyBatch(t *testing.T) {
	repo := new(MockRepository)
	s := newTestService(repo, DefaultWriteCeiling)

	res, err := s.Ingest(context.Background(), KindClient, []byte(`{"clients": []}`))
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{}, res)
	repo.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestService_Ingest_UnknownKind(t *testing.T) {
	s := newTestService(new(MockRepository), DefaultWriteCeiling)
	_, err := s.Ingest(context.Background(), Kind("invoices"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestService_Ingest_StoreFailure(t *testing.T) {
	storeErr := errors.New("connection reset")
	repo := new(MockRepository)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).Return(storeErr)

	s := newTestService(repo, DefaultWriteCeiling)
	_, err := s.Ingest(context.Background(), KindPatient, patientsBody(t, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidPayload)
}

func TestService_Ingest_DuplicateKeysMerged(t *testing.T) {
	var got []Document
	repo := new(MockRepository)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).([]Document) }).
		Return(nil)

	s := newTestService(repo, DefaultWriteCeiling)
	body := `{"clients": [{"externalId": "C1", "phone": "111"}, {"externalId": "C1", "email": "a@b.c"}]}`
	res, err := s.Ingest(context.Background(), KindClient, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count)
	require.Len(t, got, 1)
	assert.Equal(t, "111", got[0].Data["phone"])
	assert.Equal(t, "a@b.c", got[0].Data["email"])
}

func TestService_Ingest_DeletedFlagAlwaysWritten(t *testing.T) {
	var batches [][]Document
	repo := new(MockRepository)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { batches = append(batches, args.Get(1).([]Document)) }).
		Return(nil)

	s := newTestService(repo, DefaultWriteCeiling)
	ctx := context.Background()

	_, err := s.Ingest(ctx, KindPatient, []byte(`{"patients": [{"externalId": "P1", "deleted": true, "name": "Rex"}]}`))
	require.NoError(t, err)
	_, err = s.Ingest(ctx, KindPatient, []byte(`{"patients": [{"externalId": "P1", "name": "Rex"}]}`))
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Equal(t, true, batches[0][0].Data["deleted"])
	v, ok := batches[1][0].Data["deleted"]
	require.True(t, ok, "live record must carry deleted=false")
	assert.Equal(t, false, v)
}

func TestService_Ingest_Documents(t *testing.T) {
	tests := []struct {
		name       string
		kind       Kind
		body       string
		collection string
		want       map[string]any
	}{
		{
			name:       "patient",
			kind:       KindPatient,
			body:       `{"patients": [{"externalId": "P1", "name": "Rex", "birthDate": "2021-03-10", "ownerId": "C9", "custom": "kept"}]}`,
			collection: "patients",
			want: map[string]any{
				"id":         "P1",
				"name":       "Rex",
				"owner":      "Client #C9",
				"age":        3,
				"age_months": 3,
				"status":     "Active",
				"image":      "",
				"custom":     "kept",
				"source":     Source,
			},
		},
		{
			name:       "calendar event",
			kind:       KindCalendarEvent,
			body:       `{"events": [{"externalId": "A1", "patientId": "P1", "start": "2024-06-20T14:30:00Z"}]}`,
			collection: "calendar_events",
			want: map[string]any{
				"id":             "A1",
				"date":           "2024-06-20",
				"time":           "14:30",
				"start":          "2024-06-20T14:30:00Z",
				"patientName":    "Patient #P1",
				"classification": "Consultation",
				"note":           "Synced Appointment",
				"vector":         "clinic",
				"status":         "scheduled",
			},
		},
		{
			name:       "client tombstone",
			kind:       KindClient,
			body:       `{"clients": [{"externalId": "C1", "firstName": "Ann", "lastName": "Lee", "deleted": true}]}`,
			collection: "clients",
			want: map[string]any{
				"id":          "C1",
				"displayName": "Ann Lee",
				"deleted":     true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Document
			repo := new(MockRepository)
			repo.On("UpsertBatch", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { got = args.Get(1).([]Document) }).
				Return(nil)

			s := newTestService(repo, DefaultWriteCeiling)
			_, err := s.Ingest(context.Background(), tt.kind, []byte(tt.body))
			require.NoError(t, err)
			require.Len(t, got, 1)

			doc := got[0]
			assert.Equal(t, tt.collection, doc.Collection)
			for k, v := range tt.want {
				assert.Equal(t, v, doc.Data[k], k)
			}
			assert.Equal(t, fixedNow.Format(time.RFC3339Nano), doc.Data["lastSyncedAt"])
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "patients", want: KindPatient},
		{in: "clients", want: KindClient},
		{in: "calendar", want: KindCalendarEvent},
		{in: "calendar-events", want: KindCalendarEvent},
		{in: "invoices", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEntity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		birth          string
		years, months int
	}{
		{birth: "", years: 0, months: 0},
		{birth: "2024-06-01", years: 0, months: 0},
		{birth: "2023-01-31", years: 1, months: 5},
		{birth: "2030-01-01", years: 0, months: 0},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.birth, "-", ""), func(t *testing.T) {
			y, m := age(tt.birth, now)
			assert.Equal(t, tt.years, y)
			assert.Equal(t, tt.months, m)
		})
	}
}
