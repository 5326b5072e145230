package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserver(t *testing.T) {
	before := testutil.ToFloat64(Attempts.WithLabelValues("timeout"))
	sessionsBefore := testutil.ToFloat64(Sessions.WithLabelValues("budget_exhausted"))

	var o Observer
	o.AttemptFinished("timeout")
	o.AttemptFinished("timeout")
	o.SessionFinished("budget_exhausted", 3, 2*time.Second)

	assert.Equal(t, before+2, testutil.ToFloat64(Attempts.WithLabelValues("timeout")))
	assert.Equal(t, sessionsBefore+1, testutil.ToFloat64(Sessions.WithLabelValues("budget_exhausted")))
}
