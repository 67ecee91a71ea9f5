package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/sessiond/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 10)
				convey.So(cfg.FetchLimit, convey.ShouldEqual, 20)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "badger")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SESSIOND_ADDR", ":8080")
			_ = os.Setenv("SESSIOND_FETCH_LIMIT", "5")
			_ = os.Setenv("SESSIOND_SESSION_TTL_SECONDS", "3600")
			_ = os.Setenv("SESSIOND_LENIENT_EVENT_KIND", "true")
			_ = os.Setenv("SESSIOND_ATOMIC_PROMOTION", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FetchLimit, convey.ShouldEqual, 5)
				convey.So(cfg.SessionTTLSeconds, convey.ShouldEqual, 3600)
				convey.So(cfg.LenientEventKind, convey.ShouldBeTrue)
				convey.So(cfg.AtomicPromotion, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
store_backend: sqlite
store_path: /tmp/sessiond.db
max_batch_size: 8
sweep_interval_s: 15
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SESSIOND_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep defaults elsewhere", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "sqlite")
				convey.So(cfg.StorePath, convey.ShouldEqual, "/tmp/sessiond.db")
				convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 8)
				convey.So(cfg.SweepIntervalS, convey.ShouldEqual, 15)
				convey.So(cfg.FetchLimit, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nfetch_limit: 7\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SESSIOND_CONFIG", tmpFile)
			_ = os.Setenv("SESSIOND_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FetchLimit, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SESSIOND_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SESSIOND_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SESSIOND_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SESSIOND_FETCH_LIMIT", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When selecting sqlite without a path", func() {
			_ = os.Setenv("SESSIOND_STORE_BACKEND", "sqlite")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_path")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.
func clearConfigEnvVars() {
	envVars := []string{
		"SESSIOND_CONFIG",
		"SESSIOND_ADDR",
		"SESSIOND_FETCH_LIMIT",
		"SESSIOND_SESSION_TTL_SECONDS",
		"SESSIOND_LENIENT_EVENT_KIND",
		"SESSIOND_ATOMIC_PROMOTION",
		"SESSIOND_STORE_BACKEND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "sessiond-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
