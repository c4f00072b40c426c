package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jakekinchen/TrailMates-sub002/middleware"
	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/services"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	recs, err := h.notifications.Fetch(r.Context(), caller, caller)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []models.NotificationRecord{}
	}
	writeJSON(w, map[string]any{"notifications": recs, "count": len(recs)})
}

// SendNotification lets a user push into a friend's queue (or their
// own); the service enforces the graph gate.
func (h *NotificationHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ToUserID       string `json:"to_user_id"`
		Type           string `json:"type"`
		Title          string `json:"title"`
		Message        string `json:"message"`
		RelatedEventID string `json:"related_event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	rec, err := h.notifications.Send(r.Context(), callerID(r), models.ProfileID(input.ToUserID),
		models.NotificationType(input.Type), input.Title, input.Message, input.RelatedEventID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]string{"notification_id": rec.ID})
}

func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	notificationID := mux.Vars(r)["id"]
	if err := h.notifications.MarkRead(r.Context(), caller, caller, notificationID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	notificationID := mux.Vars(r)["id"]
	if err := h.notifications.Delete(r.Context(), caller, caller, notificationID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// StreamNotifications pushes the caller's queue as server-sent events,
// one event per change, until the client disconnects.
func (h *NotificationHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(w, errors.ErrInternal)
		return
	}
	caller := callerID(r)
	if caller == "" {
		middleware.WriteError(w, errors.ErrUnauthenticated)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan []models.NotificationRecord, 4)
	sub, err := h.notifications.Observe(caller, func(recs []models.NotificationRecord) {
		select {
		case updates <- recs:
		default:
		}
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	// Each connection owns its subscription; a second device streaming
	// the same queue is unaffected when this one disconnects.
	defer sub.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case recs := <-updates:
			data, err := json.Marshal(recs)
			if err != nil {
				continue
			}
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
