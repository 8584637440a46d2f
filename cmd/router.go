package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/status-dashboard/internal/dashboard"
	"github.com/angeloszaimis/status-dashboard/pkg/logger"
)

func setupRouter(eng dashboard.Engine, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	dashboard.New(eng, logger.Component(log, "dashboard")).Routes(mux)

	return dashboard.LogRequests(logger.Component(log, "http"), mux)
}
