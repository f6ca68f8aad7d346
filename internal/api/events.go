package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/aqiwatch/internal/api/models"
	"github.com/smazurov/aqiwatch/internal/events"
)

// registerEventRoutes registers the supervisor lifecycle SSE stream.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Lifecycle Events",
		Description: "Server-Sent Events stream of server launches, exits, stops, restarts and state changes. Starts with a status snapshot. Ordering is guaranteed within an event type only.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":            models.StatusData{},
		"child-started":     events.ChildStartedEvent{},
		"child-exited":      events.ChildExitedEvent{},
		"child-stopped":     events.ChildStoppedEvent{},
		"restart-scheduled": events.RestartScheduledEvent{},
		"state-changed":     events.StateChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		// Subscribe before the snapshot so nothing falls in between.
		// Each event type is delivered on its own goroutine, so order is only
		// kept within a type; clients that need the current state should
		// follow state-changed events or re-read /api/status.
		unsubscribers := []func(){
			events.SubscribeToChannel[events.ChildStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ChildExitedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ChildStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RestartScheduledEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StateChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(toStatusData(s.status.Status())); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
