package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(PipelineStageTotal.WithLabelValues("margin", ResultRejected))
	ObserveStage("margin", ResultRejected, time.Now())
	after := testutil.ToFloat64(PipelineStageTotal.WithLabelValues("margin", ResultRejected))
	assert.Equal(t, before+1, after)
}
