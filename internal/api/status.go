package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/aqiwatch/internal/api/models"
	"github.com/smazurov/aqiwatch/internal/supervisor"
)

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Supervisor Status",
		Description: "Current loop state, server PID, launch count and uptime",
		Tags:        []string{"supervisor"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: toStatusData(s.status.Status())}, nil
	})
}

func toStatusData(st supervisor.Status) models.StatusData {
	data := models.StatusData{
		RunID:         st.RunID,
		State:         string(st.State),
		PID:           st.PID,
		Launches:      st.Launches,
		Restarts:      max(st.Launches-1, 0),
		UptimeSeconds: st.Uptime.Seconds(),
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		data.StartedAt = &started
	}
	return data
}
