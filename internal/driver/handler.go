package driver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"github.com/openride/dispatch/pkg/ws"
	"go.uber.org/zap"
)

const defaultListLimit = 50

// Handler exposes the driver service over HTTP and WebSocket.
type Handler struct {
	drivers   *Repository
	lifecycle *Lifecycle
	locations *LocationService
	hub       *ws.Hub
	upgrader  websocket.Upgrader
}

// NewHandler creates the driver HTTP handler.
func NewHandler(drivers *Repository, lifecycle *Lifecycle, locations *LocationService, hub *ws.Hub) *Handler {
	return &Handler{
		drivers:   drivers,
		lifecycle: lifecycle,
		locations: locations,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts all driver routes on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/drivers")
	{
		api.POST("", h.createDriver)
		api.GET("", h.listDrivers)
		api.GET("/:driver_id", h.getDriver)
		api.POST("/:driver_id/location", h.updateLocation)
		api.POST("/:driver_id/status", h.setAvailability)
		api.POST("/:driver_id/ride/accept", h.acceptRide)
		api.POST("/:driver_id/ride/reject", h.rejectRide)
	}

	router.GET("/ws", h.serveWS)
}

type createDriverRequest struct {
	Name          string   `json:"name" binding:"required"`
	CarID         *string  `json:"car_id"`
	LicenseNumber *string  `json:"license_number"`
	Rating        *float64 `json:"rating,omitempty" binding:"omitempty,gte=0,lte=5"`
}

func (h *Handler) createDriver(c *gin.Context) {
	var req createDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	driver := &models.Driver{
		ID:            uuid.New(),
		Name:          req.Name,
		CarID:         req.CarID,
		LicenseNumber: req.LicenseNumber,
		Rating:        req.Rating,
	}
	if err := h.drivers.Create(c.Request.Context(), driver); err != nil {
		common.RespondError(c, err)
		return
	}

	// A fresh driver starts available; the first availability event seeds
	// downstream consumers.
	if _, err := h.lifecycle.SetAvailability(c.Request.Context(), driver.ID, true); err != nil {
		logger.ErrorContext(c.Request.Context(), "initial availability setup failed",
			zap.String("driver_id", driver.ID.String()),
			zap.Error(err),
		)
	}

	common.CreatedResponse(c, driver)
}

func (h *Handler) listDrivers(c *gin.Context) {
	drivers, err := h.drivers.List(c.Request.Context(), defaultListLimit, 0)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, drivers)
}

func (h *Handler) getDriver(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}

	driver, err := h.drivers.GetByID(c.Request.Context(), driverID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, driver)
}

type locationRequest struct {
	Latitude  float64 `json:"latitude" binding:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" binding:"gte=-180,lte=180"`
}

func (h *Handler) updateLocation(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}

	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.locations.Update(c.Request.Context(), driverID, req.Latitude, req.Longitude); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"driver_id": driverID})
}

type availabilityRequest struct {
	DriverAvailable *bool `json:"driver_available" binding:"required"`
}

func (h *Handler) setAvailability(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.lifecycle.SetAvailability(c.Request.Context(), driverID, *req.DriverAvailable)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	body := gin.H{"driver_id": driverID, "driver_available": *req.DriverAvailable}
	if created {
		common.CreatedResponse(c, body)
		return
	}
	common.SuccessResponse(c, body)
}

func (h *Handler) acceptRide(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.AcceptRide(c.Request.Context(), driverID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"driver_id": driverID})
}

func (h *Handler) rejectRide(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.RejectRide(c.Request.Context(), driverID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"driver_id": driverID})
}

// serveWS upgrades the connection and runs it until the socket closes. The
// client id comes from the query string when it parses as a UUID, otherwise
// one is minted for the session.
func (h *Handler) serveWS(c *gin.Context) {
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		clientID = uuid.New()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	logger.Info("driver connected",
		zap.String("client_id", clientID.String()),
		zap.Int("connections", h.hub.Count()+1),
	)

	ws.Serve(c.Request.Context(), conn, clientID, h.hub, func(ctx context.Context, driverID uuid.UUID, lat, lng float64) error {
		return h.locations.Update(ctx, driverID, lat, lng)
	})
}

func (h *Handler) driverID(c *gin.Context) (uuid.UUID, bool) {
	driverID, err := uuid.Parse(c.Param("driver_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "driver_id must be a UUID")
		return uuid.Nil, false
	}
	return driverID, true
}
