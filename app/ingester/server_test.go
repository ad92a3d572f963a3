package ingester

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/ingest"
)

func newTestApp() *App {
	return &App{
		LastRun: xsync.NewMap[string, ChannelStatus](),
		Logger:  zap.NewNop(),
	}
}

func get(t *testing.T, a *App, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	a := newTestApp()

	assert.Equal(t, http.StatusOK, get(t, a, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, a, "/readyz").Code, "no warehouse connection")
}

func TestStatus_RecordsLastRun(t *testing.T) {
	a := newTestApp()
	finished := time.Date(2024, 5, 10, 6, 0, 30, 0, time.UTC)
	a.record(ingest.Summary{
		StartedAt:  finished.Add(-30 * time.Second),
		FinishedAt: finished,
		Succeeded: []ingest.ChannelReport{{
			ChannelID: "UCb",
			TargetDay: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
			Rows:      map[string]int64{"videos": 4},
		}},
		Failed: []ingest.Failure{{ChannelID: "UCa", Error: "no oauth token for channel UCa"}},
	})

	rec := get(t, a, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	require.NotNil(t, resp.LastRun)
	assert.Len(t, resp.LastRun.Failed, 1)
	require.Len(t, resp.Channels, 2)
	assert.Equal(t, "UCa", resp.Channels[0].ChannelID)
	assert.False(t, resp.Channels[0].OK)
	assert.Contains(t, resp.Channels[0].Error, "no oauth token")
	assert.Equal(t, "UCb", resp.Channels[1].ChannelID)
	assert.True(t, resp.Channels[1].OK)
	assert.Equal(t, int64(4), resp.Channels[1].Rows["videos"])
}

func TestStatus_LaterRunOverwritesChannel(t *testing.T) {
	a := newTestApp()
	a.record(ingest.Summary{Failed: []ingest.Failure{{ChannelID: "UC1", Error: "boom"}}})
	a.record(ingest.Summary{Succeeded: []ingest.ChannelReport{{ChannelID: "UC1"}}})

	rec := get(t, a, "/status/UC1")
	require.Equal(t, http.StatusOK, rec.Code)

	var st ChannelStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.OK)
	assert.Empty(t, st.Error)
}

func TestStatus_UnknownChannel(t *testing.T) {
	a := newTestApp()
	assert.Equal(t, http.StatusNotFound, get(t, a, "/status/UCnope").Code)
}

func TestStatus_Empty(t *testing.T) {
	a := newTestApp()
	rec := get(t, a, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.LastRun)
	assert.Empty(t, resp.Channels)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestApp(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupScheduler_RejectsBadSpec(t *testing.T) {
	a := newTestApp()
	err := a.SetupScheduler(t.Context(), "not a cron spec")
	assert.Error(t, err)
}

func TestRunOnce_RejectsConcurrentRun(t *testing.T) {
	a := newTestApp()
	a.running.Store(true)

	_, err := a.RunOnce(t.Context(), []string{"UC1"})

	require.ErrorIs(t, err, ErrRunInProgress)
	assert.True(t, a.running.Load(), "the rejected call must not clear the running flag")
	assert.Nil(t, a.lastSummary.Load())
}

func TestRunInBackground_SkipsWhileRunningAndIsAwaited(t *testing.T) {
	a := newTestApp()
	a.running.Store(true)

	a.RunInBackground(t.Context(), []string{"UC1"})
	a.background.Wait()

	assert.Nil(t, a.lastSummary.Load())
	assert.Equal(t, http.StatusNotFound, get(t, a, "/status/UC1").Code)
}
