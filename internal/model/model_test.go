package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceSpeedTable(t *testing.T) {
	speeds := ReferenceSpeeds()
	require.Len(t, speeds, 13)
	assert.Equal(t, ReferenceSpeed{Label: "1/8000", Microseconds: 125}, speeds[0])
	assert.Equal(t, ReferenceSpeed{Label: "1", Microseconds: 1000000}, speeds[12])

	for i := 1; i < len(speeds); i++ {
		assert.Greater(t, speeds[i].Microseconds, speeds[i-1].Microseconds, "table must be ordered fastest first")
	}

	// calibrated, not 1e6/60
	s, err := LookupReferenceSpeed("1/60")
	require.NoError(t, err)
	assert.Equal(t, int64(16667), s.Microseconds)

	_, err = LookupReferenceSpeed("1/3")
	assert.Error(t, err)
}

func TestDeviationThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultDeviationThresholds().Validate())
	assert.Error(t, DeviationThresholds{Warning: 10, Error: 10}.Validate())
	assert.Error(t, DeviationThresholds{Warning: 12, Error: 10}.Validate())
	assert.Error(t, DeviationThresholds{Warning: -1, Error: 10}.Validate())
}

func TestDeviationThresholdsClassify(t *testing.T) {
	th := DefaultDeviationThresholds()

	tests := []struct {
		percent float64
		want    DeviationLevel
	}{
		{0, DeviationOK},
		{5, DeviationOK},
		{-5, DeviationOK},
		{5.01, DeviationWarning},
		{-10, DeviationWarning},
		{10.5, DeviationError},
		{-75, DeviationError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.percent), "percent %v", tt.percent)
	}
}

type recordingVisitor struct {
	visited string
	message string
	result  *MeasurementResult
}

func (v *recordingVisitor) VisitIdle()                   { v.visited = "idle" }
func (v *recordingVisitor) VisitMeasuring(string)        { v.visited = "measuring" }
func (v *recordingVisitor) VisitError(_, message string) { v.visited, v.message = "error", message }
func (v *recordingVisitor) VisitSuccess(_ string, r *MeasurementResult) {
	v.visited, v.result = "success", r
}

func TestProtocolStateAccept(t *testing.T) {
	result := &MeasurementResult{ReferenceShutterSpeed: "1/500"}

	v := &recordingVisitor{}
	IdleState().Accept(v)
	assert.Equal(t, "idle", v.visited)

	MeasuringState("a").Accept(v)
	assert.Equal(t, "measuring", v.visited)

	SuccessState("a", result).Accept(v)
	assert.Equal(t, "success", v.visited)
	assert.Same(t, result, v.result)

	ErrorState("a", "boom").Accept(v)
	assert.Equal(t, "error", v.visited)
	assert.Equal(t, "boom", v.message)
}

func TestConnectionState(t *testing.T) {
	assert.False(t, DisconnectedState().IsConnected())
	assert.True(t, ConnectedState("STM32").IsConnected())

	s := ConnectionErrorState("STM32", "Device not found")
	assert.False(t, s.IsConnected())
	assert.Equal(t, ConnectionError, s.Status)
}

func TestCameraValidate(t *testing.T) {
	c := &Camera{Manufacturer: "Nikon", Model: "F3", SerialNumber: "1234"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "Nikon-F3-1234", c.UniqueIdentifier())

	c.SerialNumber = " "
	assert.Error(t, c.Validate())
}
