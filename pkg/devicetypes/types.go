// pkg/devicetypes/types.go
package devicetypes

import (
	"fmt"
	"strings"
)

// Identity describes a supported measuring board by its USB vendor/product ID pair
type Identity struct {
	Name      string `json:"name"`
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
}

// String returns "Name (VID:PID)"
func (i Identity) String() string {
	return fmt.Sprintf("%s (%04X:%04X)", i.Name, i.VendorID, i.ProductID)
}

// Known boards
var (
	RaspberryPico = Identity{Name: "Raspberry Pico", VendorID: 0x2E8A, ProductID: 0x000A}
	STM32         = Identity{Name: "STM32", VendorID: 0x0483, ProductID: 0x5740}
	Arduino       = Identity{Name: "Arduino", VendorID: 0x2341, ProductID: 0x0043}
)

// Default is the board used when nothing has been selected
var Default = STM32

var supported = []Identity{RaspberryPico, STM32, Arduino}

// All returns the supported boards in display order
func All() []Identity {
	out := make([]Identity, len(supported))
	copy(out, supported)
	return out
}

// ByName looks up a board by its display name (case-insensitive)
func ByName(name string) (Identity, bool) {
	for _, id := range supported {
		if strings.EqualFold(id.Name, strings.TrimSpace(name)) {
			return id, true
		}
	}
	return Identity{}, false
}

// ByUSBID looks up a board by its vendor/product ID pair
func ByUSBID(vendorID, productID uint16) (Identity, bool) {
	for _, id := range supported {
		if id.VendorID == vendorID && id.ProductID == productID {
			return id, true
		}
	}
	return Identity{}, false
}

// Names returns the display names of all supported boards
func Names() []string {
	names := make([]string, 0, len(supported))
	for _, id := range supported {
		names = append(names, id.Name)
	}
	return names
}
