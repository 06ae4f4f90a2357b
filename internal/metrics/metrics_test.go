package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "success", Result(true))
	assert.Equal(t, "failure", Result(false))
}

func TestDispatchOutcomesCounter(t *testing.T) {
	before := testutil.ToFloat64(DispatchOutcomes.WithLabelValues("wallet", "apple", "success"))
	DispatchOutcomes.WithLabelValues("wallet", "apple", "success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DispatchOutcomes.WithLabelValues("wallet", "apple", "success")))
}

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(":0")
	rec := httptest.NewRecorder()

	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
