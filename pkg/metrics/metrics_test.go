package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register its collectors there", func() {
				So(manager, ShouldNotBeNil)
				manager.batchesReceived.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(3*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)
				So(manager.constLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When passing empty option values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "sessiond")
				So(manager.subsystem, ShouldEqual, "correlator")
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording correlation outcomes", func() {
			promoted := testutil.ToFloat64(globalManager.sessionsPromoted)
			staged := testutil.ToFloat64(globalManager.sessionsStaged)
			RecordSessionPromoted()
			RecordSessionStaged()
			RecordSessionStaged()
			RecordSessionOutOfOrder()

			Convey("Then the counters should move", func() {
				So(testutil.ToFloat64(globalManager.sessionsPromoted), ShouldEqual, promoted+1)
				So(testutil.ToFloat64(globalManager.sessionsStaged), ShouldEqual, staged+2)
			})
		})

		Convey("When recording rejected batches by reason", func() {
			before := testutil.ToFloat64(globalManager.batchesRejected.WithLabelValues("schema"))
			RecordBatchReceived()
			RecordBatchRejected("schema")

			Convey("Then only that reason should move", func() {
				So(testutil.ToFloat64(globalManager.batchesRejected.WithLabelValues("schema")), ShouldEqual, before+1)
			})
		})

		Convey("When recording async writes", func() {
			RecordAsyncSubmitted("promote")
			RecordAsyncFailed("promote")
			RecordAsyncLatency("promote", 3.5)
			UpdatePendingHandles(7)
			UpdateTrackerState(1)
			UpdateBreakerState(2)

			Convey("Then the gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.pendingHandles), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.trackerState), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.breakerState), ShouldEqual, 2)
			})
		})

		Convey("When recording store, HTTP and system metrics", func() {
			So(func() {
				RecordEventReceived("start")
				RecordStoreLatency("upsert_incomplete", 1.2)
				RecordStoreError("read_incomplete")
				RecordExpiredRowsPurged(3)
				RecordHTTPRequest("events", "POST", "202")
				RecordHTTPRequestDuration("events", "POST", "202", 4)
				RecordErrorByComponent("tracker", "async_write")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then it should contain the service metrics", func() {
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["sessiond_correlator_batches_received_total"], ShouldBeTrue)
			})
		})
	})
}
