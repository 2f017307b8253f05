package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/mixseek/internal/config"
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
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MaxRounds, convey.ShouldEqual, 5)
				convey.So(cfg.TimeoutPerTeamSeconds, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MIXSEEK_ADDR", ":8080")
			_ = os.Setenv("MIXSEEK_MAX_ROUNDS", "7")
			_ = os.Setenv("MIXSEEK_TIMEOUT_PER_TEAM_SECONDS", "60")
			_ = os.Setenv("MIXSEEK_STORAGE__DRIVER", "memory")
			_ = os.Setenv("MIXSEEK_TEAMS__ALPHA__MAX_ROUNDS", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxRounds, convey.ShouldEqual, 7)
				convey.So(cfg.TimeoutPerTeamSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.Storage.Driver, convey.ShouldEqual, "memory")

				s, err := cfg.Resolve("alpha")
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.MaxRounds, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
addr: ":9090"
max_rounds: 4
timeout_per_team_seconds: 120
teams:
  beta:
    max_rounds: 2
    timeout_per_team_seconds: 10
evaluator:
  metric_weights:
    relevance: 1.0
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MIXSEEK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxRounds, convey.ShouldEqual, 4)
				convey.So(cfg.Evaluator.MetricWeights["relevance"], convey.ShouldEqual, 1.0)

				s, err := cfg.Resolve("beta")
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.MaxRounds, convey.ShouldEqual, 2)
				convey.So(s.TimeoutPerTeam.Seconds(), convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When both file and environment variables are set", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nmax_rounds: 4\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MIXSEEK_CONFIG", tmpFile)
			_ = os.Setenv("MIXSEEK_MAX_ROUNDS", "9")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxRounds, convey.ShouldEqual, 9)
			})
		})

		convey.Convey("When loading config with an invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MIXSEEK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("MIXSEEK_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the global max_rounds is cleared", func() {
			_ = os.Setenv("MIXSEEK_MAX_ROUNDS", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then startup fails with a configuration error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("MIXSEEK_MAX_ROUNDS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("MIXSEEK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"MIXSEEK_CONFIG",
		"MIXSEEK_ADDR",
		"MIXSEEK_MAX_ROUNDS",
		"MIXSEEK_TIMEOUT_PER_TEAM_SECONDS",
		"MIXSEEK_STORAGE__DRIVER",
		"MIXSEEK_TEAMS__ALPHA__MAX_ROUNDS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "mixseek-config-*.yaml")
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
