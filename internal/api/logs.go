package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/aqiwatch/internal/api/models"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent supervisor log records from the in-memory buffer, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		entries := []models.LogEntry{}
		if s.logs != nil {
			for _, e := range s.logs.Query(input.Module, input.Limit) {
				entries = append(entries, models.LogEntry{
					Timestamp:  e.Timestamp,
					Level:      e.Level,
					Module:     e.Module,
					Message:    e.Message,
					Attributes: e.Attributes,
				})
			}
		}

		return &models.LogsResponse{Body: models.LogsData{
			Entries: entries,
			Count:   len(entries),
		}}, nil
	})
}
