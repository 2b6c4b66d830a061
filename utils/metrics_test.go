package utils

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransitionOutcomes(t *testing.T) {
	applied := testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeApplied))
	rejected := testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeRejected))
	failed := testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeError))

	RecordTransition("accept", nil)
	RecordTransition("accept", NewInvalidStateError("already accepted"))
	RecordTransition("accept", NewUnavailableError("accept", errors.New("timeout")))

	assert.Equal(t, applied+1, testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeApplied)))
	assert.Equal(t, rejected+1, testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeRejected)))
	assert.Equal(t, failed+1, testutil.ToFloat64(AlertTransitionsTotal.WithLabelValues("accept", OutcomeError)))
}
