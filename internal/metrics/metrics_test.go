package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.ObserveBooking("booked")
	c.ObserveBooking("booked")
	c.ObserveBooking("unavailable")
	c.ObserveTransition("confirmed", "ok")
	c.ObserveLockWait(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TransitionsTotal.WithLabelValues("confirmed", "ok")))

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "scheduling_booking_attempts_total"))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBooking("booked")
		c.ObserveTransition("cancelled", "ok")
		c.ObserveLockWait(time.Second)
		c.ObserveResolvedSlots(3)
	})
}
