package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveParseOutcomeIncrementsCorrectLabel(t *testing.T) {
	before := testutil.ToFloat64(parseRequestsTotal.WithLabelValues("ok"))
	ObserveParseOutcome(nil)
	after := testutil.ToFloat64(parseRequestsTotal.WithLabelValues("ok"))
	assert.Equal(t, before+1, after)
}

func TestObserveModelDeliveryLabelsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(modelDeliveryOutcomesTotal.WithLabelValues("acme/recognizer", "ready"))
	ObserveModelDelivery("acme/recognizer", "ready")
	after := testutil.ToFloat64(modelDeliveryOutcomesTotal.WithLabelValues("acme/recognizer", "ready"))
	assert.Equal(t, before+1, after)
}

func TestObserveStageTimingsDoesNotPanicOnEmptyMap(t *testing.T) {
	assert.NotPanics(t, func() { ObserveStageTimingsMS(nil) })
}

func TestHandlerIsNonNil(t *testing.T) {
	assert.NotNil(t, Handler())
}
