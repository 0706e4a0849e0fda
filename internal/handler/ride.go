package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"porter/internal/domain"
	"porter/internal/middleware"
	"porter/internal/service"
)

// RideHandler serves the main view and ride actions.
type RideHandler struct {
	sessions *service.SessionManager
	rides    *service.RideStore
	notifier *service.NotificationService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(sessions *service.SessionManager, rides *service.RideStore, notifier *service.NotificationService) *RideHandler {
	return &RideHandler{
		sessions: sessions,
		rides:    rides,
		notifier: notifier,
	}
}

// CreateRideRequest is the ride request form.
type CreateRideRequest struct {
	PickupLocation string `json:"pickup_location" form:"pickup_location"`
	Destination    string `json:"destination" form:"destination"`
}

// UpdateStatusRequest is the status change form.
type UpdateStatusRequest struct {
	Status string `json:"status" form:"status"`
}

// RideListResponse is returned after a status change.
type RideListResponse struct {
	Rides []RideResponse `json:"rides"`
}

// MainView handles GET /
func (h *RideHandler) MainView(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	resp := MainViewResponse{
		User:      toUserResponse(user),
		ExpiresAt: formatTime(h.sessions.Snapshot().ExpiresAt),
	}

	rides, err := h.rides.FetchMine(c.Request.Context())
	if err != nil {
		// Show what we have and let the user retry.
		resp.Error = err.Error()
		rides = h.rides.Rides()
	}

	resp.Rides = h.rideResponses(rides)
	if h.notifier != nil {
		resp.Notifications = toNotificationResponses(h.notifier.Recent())
	} else {
		resp.Notifications = []NotificationResponse{}
	}

	respondJSON(c, http.StatusOK, resp)
}

// CreateRide handles POST /rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rides.RequestRide(c.Request.Context(), req.PickupLocation, req.Destination)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride, h.rides.Actions(ride)))
}

// UpdateStatus handles POST /rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	rideID := c.Param("id")

	var req UpdateStatusRequest
	if err := c.ShouldBind(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status is required", Field: "status"})
		return
	}

	if err := h.rides.UpdateStatus(c.Request.Context(), rideID, domain.RideStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RideListResponse{Rides: h.rideResponses(h.rides.Rides())})
}

// AvailablePorters handles GET /porters
func (h *RideHandler) AvailablePorters(c *gin.Context) {
	porters, err := h.rides.AvailablePorters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]UserResponse, 0, len(porters))
	for _, p := range porters {
		response = append(response, toUserResponse(p))
	}
	c.JSON(http.StatusOK, response)
}

func (h *RideHandler) rideResponses(rides []domain.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r, h.rides.Actions(r)))
	}
	return out
}
