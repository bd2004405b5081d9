package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
)

func TestEnvelopeProblems(t *testing.T) {
	assert.Empty(t, envelopeProblems([]byte(`{"success":true,"data":[]}`), 200))
	assert.Empty(t, envelopeProblems([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED"}}`), 401))
	assert.Contains(t, envelopeProblems([]byte(`{"success":false}`), 404), "missing error object")
	assert.Equal(t, []string{"missing success field"}, envelopeProblems([]byte(`{"data":1}`), 200))
	assert.Equal(t, []string{"body is not a JSON object"}, envelopeProblems([]byte(`ok`), 200))
}

func TestCheckStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INTERNAL"}}`))
	}))
	defer srv.Close()

	res := check(resty.New().SetBaseURL(srv.URL), target{Path: "health", Envelope: true})
	assert.NoError(t, res.Error)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, []string{"status 500, want 200"}, res.Problems)
	assert.False(t, res.ok())
}
