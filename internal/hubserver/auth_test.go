package hubserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:9000", true},
		{"http://localhost", true},
		{"https://evil.example.com", false},
		{"http://10.0.0.5:8300", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", c.origin)
		assert.Equal(t, c.want, checkOrigin(r), "origin %q", c.origin)
	}
}

func TestRequireAuth_RejectsWrongToken(t *testing.T) {
	s := newTestServerInstance(t)
	handler := s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	r.Header.Set("X-Session-Token", "wrong")
	w := httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAuth_AcceptsQueryToken(t *testing.T) {
	s := newTestServerInstance(t)
	handler := s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodPost, "/api/upload?token="+s.token, nil)
	w := httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
