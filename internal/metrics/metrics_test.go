package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Runs(t *testing.T) {
	t.Parallel()
	r := NewRecorder()

	r.RunFinished(OutcomeCompleted, 20*time.Millisecond, 10*time.Millisecond)
	r.RunFinished(OutcomeCompleted, time.Millisecond, 0)
	r.RunFinished(OutcomeFailed, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestRecorder_FilesAndGraph(t *testing.T) {
	t.Parallel()
	r := NewRecorder()

	r.FilesChanged(2, 1, 3)
	r.GraphSize(GraphSize{Nodes: 5, Edges: 4, Files: 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.filesParsed))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.filesChanged.WithLabelValues("removed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.graphEntities.WithLabelValues("nodes")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.graphEntities.WithLabelValues("errors")))
}

func TestRecorder_Handler(t *testing.T) {
	t.Parallel()
	r := NewRecorder()
	r.RunFinished(OutcomeRejected, 0, 0)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `thicket_index_runs_total{outcome="rejected"} 1`)
}
