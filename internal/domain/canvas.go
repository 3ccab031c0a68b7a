package domain

import (
	"fmt"
	"time"
)

// Color is an RGBA pixel color.
type Color struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
	Alpha uint8 `json:"alpha"`
}

func (c Color) Transparent() bool {
	return c.Alpha == 0
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.Red, c.Green, c.Blue)
}

// PixelRecord is one canvas cell. A cell starts absent (unclaimed), becomes
// owned once written or claimed, and never reverts to absent: clearing keeps
// the owner and drops the color.
type PixelRecord struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Color     *Color    `json:"color,omitempty"`
	Owner     ContextID `json:"owner,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p PixelRecord) Colored() bool {
	return p.Color != nil && !p.Color.Transparent()
}

// PixelUpdate is one entry of the canvas update log, and one element of a
// batch write.
type PixelUpdate struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Color Color `json:"color"`
}

// PixelModification describes one cell change inside a batch notification.
type PixelModification struct {
	X             int    `json:"x"`
	Y             int    `json:"y"`
	NewColor      *Color `json:"new_color,omitempty"`
	PreviousColor *Color `json:"previous_color,omitempty"`
}

// CanvasStats is a derived register kept alongside the colored counter.
type CanvasStats struct {
	TotalPixels       int        `json:"total_pixels"`
	ColoredPixels     int        `json:"colored_pixels"`
	TransparentPixels int        `json:"transparent_pixels"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
}

// Notification kinds recorded in the cross-context notification log.
const (
	NotificationPixelModified = "pixel_modified"
	NotificationBatchModified = "batch_pixel_modified"
	NotificationClaim         = "ownership_claim"
	NotificationClaimAccepted = "ownership_confirmed"
	NotificationOutcome       = "operation_outcome"
)

// NotificationRecord is an append-only log entry describing a cross-context
// event received by this context. It is informational only and never drives
// further mutation by itself.
type NotificationRecord struct {
	Kind      string    `json:"kind"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Color     *Color    `json:"color,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Source    ContextID `json:"source"`
	At        time.Time `json:"at"`
	Processed bool      `json:"processed"`
}
