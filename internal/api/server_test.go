package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeInvalidator struct{ calledWith int64 }

func (f *fakeInvalidator) Invalidate(userID int64) { f.calledWith = userID }

func TestHealthz_Returns200(t *testing.T) {
	s := NewServer(":0", &fakeInvalidator{}, time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidate_RejectsNonLoopback(t *testing.T) {
	inv := &fakeInvalidator{}
	s := NewServer(":0", inv, time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/invalidate/42", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int64(0), inv.calledWith)
}

func TestInvalidate_AllowsLoopback(t *testing.T) {
	inv := &fakeInvalidator{}
	s := NewServer(":0", inv, time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/invalidate/42", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), inv.calledWith)
}
