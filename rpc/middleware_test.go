package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xlend/observability/logging"
)

func TestObserveLogsMaskedCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	signer := addrOf(mustKey(t))

	handler := observe(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCaller(r.Context(), signer)
		w.WriteHeader(http.StatusAccepted)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/attestations", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, logging.RedactedValue, line["client"])
	require.EqualValues(t, http.StatusAccepted, line["status"])

	full := ledgerString(signer)
	logged, _ := line["signer"].(string)
	require.NotEqual(t, full, logged)
	require.True(t, strings.HasSuffix(logged, full[len(full)-6:]), "signer %q", logged)
	require.NotContains(t, buf.String(), "203.0.113.9")
}

func TestObserveOmitsSignerForAnonymousReads(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := observe(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/witnesses", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, present := line["signer"]
	require.False(t, present)
}
