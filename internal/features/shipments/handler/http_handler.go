package handler

import (
	"net/http"

	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/features/shipments/domain"
	"correio-ftp/internal/features/shipments/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ShipmentHandler serves the read-only tracking API.
type ShipmentHandler struct {
	// shipments is the registry view the handler reads from.
	shipments ports.ShipmentReader
}

// NewShipmentHandler creates a new instance of ShipmentHandler.
func NewShipmentHandler(shipments ports.ShipmentReader) *ShipmentHandler {
	return &ShipmentHandler{
		shipments: shipments,
	}
}

// Register mounts the tracking routes on r.
func (h *ShipmentHandler) Register(r fiber.Router) {
	r.Get("/shipments", h.ListShipments)
	r.Get("/shipments/:id", h.GetShipment)
}

// ListShipments returns every shipment, newest first.
// @Summary List shipments
// @Description List every registered shipment, newest first.
// @Produce json
// @Success 200 {array} domain.Shipment
// @Router /shipments [get]
func (h *ShipmentHandler) ListShipments(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.shipments.All())
}

// GetShipment returns one shipment by its tracking id.
// @Summary Get shipment by tracking ID
// @Description Fetch one shipment by its 4-digit tracking id.
// @Produce json
// @Param id path string true "Tracking ID"
// @Success 200 {object} domain.Shipment
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /shipments/{id} [get]
func (h *ShipmentHandler) GetShipment(c *fiber.Ctx) error {
	id := c.Params("id")

	rayID, ok := c.Locals("requestid").(string)
	if !ok {
		rayID = "unknown"
	}

	if !domain.ValidID(id) {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "Tracking ID must have 4 digits",
			RayID:   rayID,
		})
	}

	shipment, found := h.shipments.Get(id)
	if !found {
		logger.Get().Debug("Shipment not found",
			zap.String("shipment_id", id),
			zap.String("ray_id", rayID),
		)
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Message: "Shipment not found",
			RayID:   rayID,
		})
	}

	return c.Status(http.StatusOK).JSON(shipment)
}

// ErrorResponse represents the structure of an error response.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for debugging.
	RayID string `json:"ray_id"`
}
