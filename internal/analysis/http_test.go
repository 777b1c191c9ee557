package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
)

func TestHTTPTrigger_Success(t *testing.T) {
	var got async.AnalysisRequest
	var auth, ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		ctype = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	trig := NewHTTPTrigger(srv.URL, "secret", time.Second, nil)
	err := trig.Analyze(context.Background(), async.AnalysisRequest{
		DocumentID:   "doc-9",
		StoragePath:  "documents/doc-9/soa.pdf",
		DocumentType: constants.DocumentTypeFinancial,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "doc-9", got.DocumentID)
	assert.Equal(t, "documents/doc-9/soa.pdf", got.StoragePath)
	assert.Equal(t, constants.DocumentTypeFinancial, got.DocumentType)
}

func TestHTTPTrigger_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPTrigger(srv.URL, "", time.Second, nil).Analyze(context.Background(), async.AnalysisRequest{DocumentID: "x"})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPTrigger_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewHTTPTrigger(srv.URL, "", 5*time.Second, nil).Analyze(ctx, async.AnalysisRequest{DocumentID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
