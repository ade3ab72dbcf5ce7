package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockDBPinger is a mock for the DBPinger interface.
type MockDBPinger struct {
	mock.Mock
}

func (m *MockDBPinger) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func TestHealthHandler_Liveness(t *testing.T) {
	handler := newHealthHandler(encoder{}, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest("GET", "/liveness", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHealthHandler_Readiness(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		pinger := new(MockDBPinger)
		pinger.On("Ping").Return(nil)

		handler := newHealthHandler(encoder{}, pinger)
		router := chi.NewRouter()
		handler.Routes(router)

		req := httptest.NewRequest("GET", "/readiness", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
		pinger.AssertExpectations(t)
	})

	t.Run("database unreachable", func(t *testing.T) {
		pinger := new(MockDBPinger)
		pinger.On("Ping").Return(errors.New("db ping failed"))

		handler := newHealthHandler(encoder{}, pinger)
		router := chi.NewRouter()
		handler.Routes(router)

		req := httptest.NewRequest("GET", "/readiness", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Unhealthy. Database unreachable", rr.Body.String())
		pinger.AssertExpectations(t)
	})
}
