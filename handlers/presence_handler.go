package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jakekinchen/TrailMates-sub002/middleware"
	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/services"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

type PresenceHandler struct {
	publisher *services.PresencePublisher
	observer  *services.PresenceObserver
	graph     *services.SocialGraphService
}

func NewPresenceHandler(publisher *services.PresencePublisher, observer *services.PresenceObserver, graph *services.SocialGraphService) *PresenceHandler {
	return &PresenceHandler{publisher: publisher, observer: observer, graph: graph}
}

// PingLocation publishes the caller's coordinate, subject to the
// time/distance gates.
func (h *PresenceHandler) PingLocation(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	published, err := h.publisher.Publish(r.Context(), caller, caller, models.Coordinate{Latitude: lat, Longitude: lon})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]any{"published": published})
}

// ClearLocation removes the caller's presence record.
func (h *PresenceHandler) ClearLocation(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if err := h.publisher.ClearPresence(r.Context(), caller, caller); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// friendGate allows self or a member of the target's friend set.
func (h *PresenceHandler) friendGate(r *http.Request, target models.ProfileID) error {
	caller := callerID(r)
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if caller == target {
		return nil
	}
	profile, err := h.graph.GetProfile(r.Context(), target)
	if err != nil {
		return err
	}
	if !profile.HasFriend(caller) {
		return errors.ErrUnauthorized
	}
	return nil
}

// GetPresence returns a friend's current presence state, with the
// on-trail derivation applied. A missing record is reported distinctly
// from an off-trail one.
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	target := models.ProfileID(mux.Vars(r)["userID"])
	if err := h.friendGate(r, target); err != nil {
		middleware.WriteError(w, err)
		return
	}

	update, err := h.observer.Snapshot(r.Context(), target)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if update == nil {
		writeJSON(w, map[string]any{"present": false})
		return
	}
	writeJSON(w, map[string]any{"present": true, "presence": update})
}

// StreamPresence pushes a friend's presence updates as server-sent
// events until the client disconnects.
func (h *PresenceHandler) StreamPresence(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(w, errors.ErrInternal)
		return
	}
	target := models.ProfileID(mux.Vars(r)["userID"])
	if err := h.friendGate(r, target); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan *services.PresenceUpdate, 4)
	sub, err := h.observer.Observe(r.Context(), target, func(u *services.PresenceUpdate) {
		select {
		case updates <- u:
		default:
		}
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	// Each connection owns its subscription, so one client disconnecting
	// never silences another stream of the same user.
	defer sub.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u := <-updates:
			payload := map[string]any{"present": u != nil}
			if u != nil {
				payload["presence"] = u
			}
			data, err := json.Marshal(payload)
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
