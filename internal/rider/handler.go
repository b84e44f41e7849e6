package rider

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/models"
)

const defaultListLimit = 50

// Handler exposes the rider service over HTTP.
type Handler struct {
	riders  *Repository
	rides   *RideRepository
	service *Service
}

// NewHandler creates the rider HTTP handler.
func NewHandler(riders *Repository, rides *RideRepository, service *Service) *Handler {
	return &Handler{riders: riders, rides: rides, service: service}
}

// RegisterRoutes mounts all rider routes on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/riders", h.createRider)
	router.GET("/riders/:id", h.getRider)
	router.GET("/riders/:id/rides", h.listRides)
	router.POST("/rides", h.requestRide)
	router.GET("/rides/:id", h.getRide)
}

type createRiderRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
}

func (h *Handler) createRider(c *gin.Context) {
	var req createRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rider := &models.Rider{
		ID:    uuid.New(),
		Name:  req.Name,
		Phone: req.Phone,
	}
	if err := h.riders.Create(c.Request.Context(), rider); err != nil {
		common.RespondError(c, err)
		return
	}
	common.CreatedResponse(c, rider)
}

func (h *Handler) getRider(c *gin.Context) {
	riderID, ok := h.pathID(c)
	if !ok {
		return
	}

	rider, err := h.riders.GetByID(c.Request.Context(), riderID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, rider)
}

func (h *Handler) listRides(c *gin.Context) {
	riderID, ok := h.pathID(c)
	if !ok {
		return
	}

	rides, err := h.rides.ListByRider(c.Request.Context(), riderID, defaultListLimit, 0)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, rides)
}

type requestRideRequest struct {
	RiderID        uuid.UUID `json:"rider_id" binding:"required"`
	OriginLat      float64   `json:"origin_lat" binding:"gte=-90,lte=90"`
	OriginLng      float64   `json:"origin_lng" binding:"gte=-180,lte=180"`
	DestinationLat float64   `json:"destination_lat" binding:"gte=-90,lte=90"`
	DestinationLng float64   `json:"destination_lng" binding:"gte=-180,lte=180"`
}

func (h *Handler) requestRide(c *gin.Context) {
	var req requestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.RequestRide(c.Request.Context(),
		req.RiderID, req.OriginLat, req.OriginLng, req.DestinationLat, req.DestinationLng)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

func (h *Handler) getRide(c *gin.Context) {
	rideID, ok := h.pathID(c)
	if !ok {
		return
	}

	ride, err := h.rides.GetByID(c.Request.Context(), rideID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

func (h *Handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
