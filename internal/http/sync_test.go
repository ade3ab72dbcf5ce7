package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSyncService is a mock for the sync service interface.
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Pull(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*domain.SyncPullResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSyncService) Push(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*domain.SyncPushResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSyncService) PullWithRetry(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*domain.SyncPullResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSyncService) PushWithRetry(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*domain.SyncPushResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func newSyncTestRouter(svc syncService) *chi.Mux {
	router := chi.NewRouter()
	newSyncHandler(encoder{}, svc).Routes(router)
	return router
}

func TestSyncHandler_Pull(t *testing.T) {
	svc := new(MockSyncService)
	serverTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.On("PullWithRetry", mock.Anything, mock.MatchedBy(func(req *domain.SyncPullRequest) bool {
		return req.ClientID == "client-a" && req.BatchSize == 2
	})).Return(&domain.SyncPullResponse{
		Deltas: []domain.SyncDelta{{
			EntityType: "gate",
			EntityID:   "g1",
			Operation:  domain.OperationCreate,
			ETag:       "uuid=abc",
			RowVersion: 1,
		}},
		ServerTimestamp: serverTime,
		HasMore:         true,
		NextCursor:      "opaque-cursor",
		Conflicts:       []domain.SyncDelta{},
	}, nil)

	body, _ := json.Marshal(map[string]any{
		"client_id":  "client-a",
		"batch_size": 2,
	})

	req := httptest.NewRequest("POST", "/pull", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp domain.SyncPullResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Deltas, 1)
	assert.Equal(t, "g1", resp.Deltas[0].EntityID)
	assert.True(t, resp.HasMore)
	assert.Equal(t, "opaque-cursor", resp.NextCursor)
	svc.AssertExpectations(t)
}

func TestSyncHandler_PullMalformedBody(t *testing.T) {
	svc := new(MockSyncService)

	req := httptest.NewRequest("POST", "/pull", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "PullWithRetry")
}

func TestSyncHandler_PullInvalidCursor(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("PullWithRetry", mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(domain.ErrInvalidCursor, "garbage"))

	body, _ := json.Marshal(map[string]any{"client_id": "client-a", "cursor": "garbage"})
	req := httptest.NewRequest("POST", "/pull", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "invalid sync cursor")
}

func TestSyncHandler_PullTransientFailure(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("PullWithRetry", mock.Anything, mock.Anything).
		Return(nil, domain.Transient(errors.New("store unavailable")))

	body, _ := json.Marshal(map[string]any{"client_id": "client-a"})
	req := httptest.NewRequest("POST", "/pull", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSyncHandler_Push(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("PushWithRetry", mock.Anything, mock.MatchedBy(func(req *domain.SyncPushRequest) bool {
		return req.ClientID == "client-a" &&
			req.Policy == domain.PolicyLastWriteWins &&
			len(req.Deltas) == 1
	})).Return(&domain.SyncPushResponse{
		Accepted: []domain.AcceptedDelta{{
			EntityType: "gate",
			EntityID:   "g1",
			ETag:       "uuid=next",
			RowVersion: 2,
		}},
		Rejected:  []domain.RejectedDelta{},
		Conflicts: []domain.SyncConflict{},
		Stats:     domain.SyncStats{Processed: 1, Accepted: 1},
	}, nil)

	body, _ := json.Marshal(map[string]any{
		"client_id": "client-a",
		"policy":    "last_write_wins",
		"deltas": []map[string]any{{
			"entity_type": "gate",
			"entity_id":   "g1",
			"operation":   "UPDATE",
			"etag":        "uuid=prev",
			"data":        map[string]any{"name": "north"},
		}},
	})

	req := httptest.NewRequest("POST", "/push", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp domain.SyncPushResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accepted, 1)
	assert.Equal(t, "uuid=next", resp.Accepted[0].ETag)
	assert.Equal(t, 1, resp.Stats.Accepted)
	svc.AssertExpectations(t)
}

func TestSyncHandler_PushInvalidPolicy(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("PushWithRetry", mock.Anything, mock.Anything).
		Return(nil, errors.New("unknown conflict policy: coin_flip"))

	body, _ := json.Marshal(map[string]any{"client_id": "client-a", "policy": "coin_flip"})
	req := httptest.NewRequest("POST", "/push", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	newSyncTestRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
