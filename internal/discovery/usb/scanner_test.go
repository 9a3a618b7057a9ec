package usb

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

func TestMatch(t *testing.T) {
	device := match(&gousb.DeviceDesc{Bus: 1, Address: 7, Vendor: gousb.ID(0x2E8A), Product: gousb.ID(0x000A)})
	require.NotNil(t, device)
	assert.Equal(t, devicetypes.RaspberryPico, device.Device)
	assert.Equal(t, protocol.BackendUSB, device.Backend)
	assert.Equal(t, "bus 1 address 7", device.Location)

	assert.Nil(t, match(&gousb.DeviceDesc{Vendor: gousb.ID(0x046D), Product: gousb.ID(0xC52B)}))
}
