package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDispatch(t *testing.T) {
	before := testutil.ToFloat64(DispatchOutcomes.WithLabelValues("published"))
	ObserveDispatch("published")
	if got := testutil.ToFloat64(DispatchOutcomes.WithLabelValues("published")); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	ObserveReservation("committed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `queuelabs_reservations_total{result="committed"}`) {
		t.Errorf("metrics output missing reservation counter:\n%s", body)
	}
}
