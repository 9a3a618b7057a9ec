// internal/model/speed.go
package model

import "fmt"

// ReferenceSpeed is a nominal shutter speed and its calibrated reference duration
type ReferenceSpeed struct {
	Label        string `json:"label"`
	Microseconds int64  `json:"microseconds"`
}

// String returns the label, e.g. "1/125"
func (s ReferenceSpeed) String() string {
	return s.Label
}

// Calibrated reference table, fastest first. The values are not plain reciprocals.
var referenceSpeeds = []ReferenceSpeed{
	{Label: "1/8000", Microseconds: 125},
	{Label: "1/4000", Microseconds: 250},
	{Label: "1/2000", Microseconds: 500},
	{Label: "1/1000", Microseconds: 1000},
	{Label: "1/500", Microseconds: 2000},
	{Label: "1/250", Microseconds: 4000},
	{Label: "1/125", Microseconds: 8000},
	{Label: "1/60", Microseconds: 16667},
	{Label: "1/30", Microseconds: 33333},
	{Label: "1/15", Microseconds: 66667},
	{Label: "1/8", Microseconds: 125000},
	{Label: "1/2", Microseconds: 500000},
	{Label: "1", Microseconds: 1000000},
}

// ReferenceSpeeds returns the ordered reference table
func ReferenceSpeeds() []ReferenceSpeed {
	out := make([]ReferenceSpeed, len(referenceSpeeds))
	copy(out, referenceSpeeds)
	return out
}

// LookupReferenceSpeed finds a table entry by label
func LookupReferenceSpeed(label string) (ReferenceSpeed, error) {
	for _, s := range referenceSpeeds {
		if s.Label == label {
			return s, nil
		}
	}
	return ReferenceSpeed{}, fmt.Errorf("unknown reference shutter speed: %q", label)
}
