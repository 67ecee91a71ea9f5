package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/sessiond/internal/config"
	"github.com/okian/sessiond/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainWiring(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		_ = os.Setenv("SESSIOND_ADDR", ":8181")
		_ = os.Setenv("SESSIOND_FETCH_LIMIT", "7")
		defer func() {
			_ = os.Unsetenv("SESSIOND_ADDR")
			_ = os.Unsetenv("SESSIOND_FETCH_LIMIT")
		}()

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When building the service", func() {
			svc := newService(cfg, logger.Get())

			convey.Convey("Then it should carry the configured values", func() {
				stats := svc.GetStats()
				convey.So(stats["fetch_limit"], convey.ShouldEqual, 7)
				convey.So(stats["store_backend"], convey.ShouldEqual, "badger")
			})
		})

		convey.Convey("When building the HTTP server", func() {
			svc := newService(cfg, logger.Get())
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()
			srv := newHTTPServer(cfg, svc, logger.Get())

			convey.Convey("Then it should serve the API on the configured address", func() {
				convey.So(srv.Addr, convey.ShouldEqual, ":8181")
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/nobody", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"sessions":[]`)

				w = httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`[]`)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When updating system metrics", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
