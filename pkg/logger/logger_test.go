package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/status-dashboard/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	Describe("New", func() {
		It("should create a logger for every environment", func() {
			Expect(logger.New("info", false, "dev")).NotTo(BeNil())
			Expect(logger.New("info", true, "prod")).NotTo(BeNil())
		})

		DescribeTable("should respect the level",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(level, false, "dev")
				Expect(log.Enabled(ctx, enabled)).To(BeTrue())
				Expect(log.Enabled(ctx, disabled)).To(BeFalse())
			},
			Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-1),
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("warn", "WARN", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
			Entry("unknown falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug),
		)
	})

	Describe("NewWithWriter", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = &bytes.Buffer{}
		})

		It("should write JSON in prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "prod")
			log.Info("Service is up", slog.String("service", "weight"))

			var line map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
			Expect(line).To(HaveKeyWithValue("msg", "Service is up"))
			Expect(line).To(HaveKeyWithValue("environment", "prod"))
			Expect(line).To(HaveKeyWithValue("service", "weight"))
		})

		It("should write text elsewhere", func() {
			log := logger.NewWithWriter(buf, "info", false, "dev")
			log.Info("Poller started")

			Expect(buf.String()).To(ContainSubstring(`msg="Poller started"`))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should include the source when asked", func() {
			log := logger.NewWithWriter(buf, "info", true, "prod")
			log.Info("hello")

			Expect(buf.String()).To(ContainSubstring(`"source"`))
		})
	})

	Describe("Component", func() {
		It("should tag records with the component", func() {
			buf := &bytes.Buffer{}
			log := logger.Component(logger.NewWithWriter(buf, "info", false, "dev"), "poller")
			log.Info("tick")

			Expect(buf.String()).To(ContainSubstring("component=poller"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})
	})
})
