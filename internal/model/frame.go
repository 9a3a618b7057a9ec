// internal/model/frame.go
package model

// MultiSensorEventType is the only eventType accepted from the firmware
const MultiSensorEventType = "MultiSensorMeasure"

// RawSensorFrame is one parsed measurement frame as sent by the firmware.
// Timestamps are microsecond ticks.
type RawSensorFrame struct {
	BottomLeftOpen  uint64 `json:"bottomLeftOpen"`
	BottomLeftClose uint64 `json:"bottomLeftClose"`
	CenterOpen      uint64 `json:"centerOpen"`
	CenterClose     uint64 `json:"centerClose"`
	TopRightOpen    uint64 `json:"topRightOpen"`
	TopRightClose   uint64 `json:"topRightClose"`

	BottomLeftOpenOffset  int32 `json:"bottomLeftOpenOffset"`
	BottomLeftCloseOffset int32 `json:"bottomLeftCloseOffset"`
	TopRightOpenOffset    int32 `json:"topRightOpenOffset"`
	TopRightCloseOffset   int32 `json:"topRightCloseOffset"`

	FirmwareVersion string `json:"firmware_version"`
}
