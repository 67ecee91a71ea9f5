package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/sessiond/internal/app"
	"github.com/okian/sessiond/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report sensible defaults before start", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["store_backend"], ShouldEqual, "badger")
			So(stats["max_batch_size"], ShouldEqual, 10)
			So(stats["fetch_limit"], ShouldEqual, 20)
			So(stats["ttl_seconds"], ShouldEqual, int64(31_556_952))
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithStore(service.StoreBadger, ""),
			service.WithFetchLimit(5),
			service.WithMaxBatchSize(4),
			service.WithSessionTTL(time.Hour),
			service.WithLenientEventKind(true),
			service.WithAtomicPromotion(false),
			service.WithAsyncWriteTimeout(time.Second),
			service.WithBreaker(3, time.Second),
			service.WithQueueInitialCapacity(16),
		)

		Convey("Then it should be created successfully", func() {
			stats := svc.GetStats()
			So(stats["fetch_limit"], ShouldEqual, 5)
			So(stats["max_batch_size"], ShouldEqual, 4)
			So(stats["lenient_event_kind"], ShouldEqual, true)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When it is used before start", func() {
			_, err := svc.ReceiveEvents(ctx, []byte(`[]`))
			_, ferr := svc.Fetch(ctx, "p")

			Convey("Then calls fail with ErrNotStarted", func() {
				So(err, ShouldEqual, service.ErrNotStarted)
				So(ferr, ShouldEqual, service.ErrNotStarted)
			})
		})

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["atomic_promotion"], ShouldEqual, true)
				So(stats["breaker_state"], ShouldEqual, "closed")
			})
		})

		Convey("When stopping a started service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it should refuse further work and restarts", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.ReceiveEvents(ctx, []byte(`[]`))
				So(err, ShouldEqual, service.ErrStopped)
				So(svc.Start(ctx), ShouldEqual, service.ErrStopped)
				So(svc.Shutdown(ctx), ShouldBeNil)
			})
		})

		Convey("When the store backend is unknown", func() {
			bad := service.New(service.WithStore("cassandra", ""))
			err := bad.Start(ctx)

			Convey("Then start fails", func() {
				So(errors.Is(err, service.ErrUnknownStore), ShouldBeTrue)
			})
		})
	})
}
