package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jakekinchen/TrailMates-sub002/middleware"
	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/services"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

type FriendHandler struct {
	requests    *services.FriendRequestService
	coordinator *services.SyncCoordinator
}

func NewFriendHandler(requests *services.FriendRequestService, coordinator *services.SyncCoordinator) *FriendHandler {
	return &FriendHandler{requests: requests, coordinator: coordinator}
}

func (h *FriendHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	caller := callerID(r)
	req, err := h.requests.Send(r.Context(), caller, caller, models.ProfileID(input.ToUserID))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]string{"request_id": req.ID})
}

func (h *FriendHandler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	friendID, err := h.requests.Accept(r.Context(), callerID(r), input.RequestID)
	if err != nil {
		// NOT_FOUND here usually means another device resolved the
		// request first; clients treat it as benign.
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "friend_id": string(friendID)})
}

func (h *FriendHandler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	if err := h.requests.Reject(r.Context(), callerID(r), input.RequestID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FriendID string `json:"friend_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	if err := h.coordinator.RemoveFriend(r.Context(), callerID(r), models.ProfileID(input.FriendID)); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *FriendHandler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListPending(r.Context(), callerID(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if reqs == nil {
		reqs = []models.FriendRequest{}
	}
	writeJSON(w, map[string]any{"requests": reqs, "count": len(reqs)})
}
