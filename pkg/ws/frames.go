package ws

import (
	"time"

	"github.com/google/uuid"
)

// Frame types exchanged with driver apps. Every frame is a flat JSON object
// with a "type" discriminator and the payload fields alongside it.
const (
	FrameDriverLocationUpdate = "driver_location_update"
	FrameRideOffer            = "ride_offer"
	FrameHeartBeat            = "heart_beat"
	FrameSystemMessage        = "system_message"
	FrameWelcome              = "ws.welcome"
	FrameServerPong           = "server.pong"
	FrameClientPing           = "client.ping"
)

// envelope is used to peek at the discriminator before full decode.
type envelope struct {
	Type string `json:"type"`
}

// LocationUpdateFrame reports a driver's position from their app.
type LocationUpdateFrame struct {
	Type      string    `json:"type"`
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Coord is a lat/lng pair used inside offer frames.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RideOfferFrame is pushed to the assigned driver over their socket.
type RideOfferFrame struct {
	Type         string    `json:"type"`
	RideID       uuid.UUID `json:"ride_id"`
	ExpiresInSec int       `json:"expires_in_sec"`
	Pickup       Coord     `json:"pickup"`
	Dropoff      Coord     `json:"dropoff"`
}

// WelcomeFrame is the first frame a client receives after connecting.
type WelcomeFrame struct {
	Type     string    `json:"type"`
	ClientID uuid.UUID `json:"client_id"`
	TSMillis int64     `json:"ts_ms"`
}

// PongFrame answers an application-level client.ping.
type PongFrame struct {
	Type     string `json:"type"`
	TSMillis int64  `json:"ts_ms"`
}

// SystemMessageFrame carries an operator-facing notice to a driver.
type SystemMessageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewWelcome builds the welcome frame sent on registration.
func NewWelcome(clientID uuid.UUID, now time.Time) WelcomeFrame {
	return WelcomeFrame{Type: FrameWelcome, ClientID: clientID, TSMillis: now.UnixMilli()}
}

// NewPong builds the reply to a client.ping frame.
func NewPong(now time.Time) PongFrame {
	return PongFrame{Type: FrameServerPong, TSMillis: now.UnixMilli()}
}

// NewRideOffer builds an offer frame for the assigned driver.
func NewRideOffer(rideID uuid.UUID, expiresInSec int, pickup, dropoff Coord) RideOfferFrame {
	return RideOfferFrame{
		Type:         FrameRideOffer,
		RideID:       rideID,
		ExpiresInSec: expiresInSec,
		Pickup:       pickup,
		Dropoff:      dropoff,
	}
}
