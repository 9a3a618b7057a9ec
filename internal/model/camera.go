// internal/model/camera.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// Camera is a camera body whose shutter is being tested
type Camera struct {
	ID           int64     `json:"id" db:"id"`
	Manufacturer string    `json:"manufacturer" db:"manufacturer"`
	Model        string    `json:"model" db:"model"`
	SerialNumber string    `json:"serial_number" db:"serial_number"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// UniqueIdentifier is manufacturer-model-serial
func (c *Camera) UniqueIdentifier() string {
	return fmt.Sprintf("%s-%s-%s", c.Manufacturer, c.Model, c.SerialNumber)
}

// Validate checks the required fields
func (c *Camera) Validate() error {
	if strings.TrimSpace(c.Manufacturer) == "" {
		return fmt.Errorf("manufacturer is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if strings.TrimSpace(c.SerialNumber) == "" {
		return fmt.Errorf("serial number is required")
	}
	return nil
}
