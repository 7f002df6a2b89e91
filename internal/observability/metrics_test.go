package observability

import (
	"net/http/httptest"
	"bytes"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesSubmissionCounters(t *testing.T) {
	before := testutil.ToFloat64(SubmissionTransitions().WithLabelValues("submit", "ok"))
	SubmissionTransitions().WithLabelValues("submit", "ok").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(SubmissionTransitions().WithLabelValues("submit", "ok")))

	RejectedFiles().WithLabelValues("extension_not_allowed").Add(2)

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "tugas_submission_transitions_total")
	require.Contains(t, buf.String(), `tugas_rejected_files_total{reason="extension_not_allowed"}`)
}
