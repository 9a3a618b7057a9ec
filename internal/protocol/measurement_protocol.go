// internal/protocol/measurement_protocol.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shutter-service/internal/model"
)

// DisplayReadyMessage is the readiness marker, matched case-insensitively
const DisplayReadyMessage = "Display Ready"

// Timing holds the read timeouts and pacing of the measurement loop
type Timing struct {
	ReadyReadTimeout     time.Duration `json:"ready_read_timeout"`
	DataReadTimeout      time.Duration `json:"data_read_timeout"`
	ReadyPollInterval    time.Duration `json:"ready_poll_interval"`
	DataPollInterval     time.Duration `json:"data_poll_interval"`
	RetryDelay           time.Duration `json:"retry_delay"`
	ListenBackoff        time.Duration `json:"listen_backoff"`
	MaxConsecutiveErrors int           `json:"max_consecutive_errors"`
}

// DefaultTiming returns the firmware-tested values
func DefaultTiming() Timing {
	return Timing{
		ReadyReadTimeout:     1000 * time.Millisecond,
		DataReadTimeout:      100 * time.Millisecond,
		ReadyPollInterval:    50 * time.Millisecond,
		DataPollInterval:     5 * time.Millisecond,
		RetryDelay:           10 * time.Millisecond,
		ListenBackoff:        time.Second,
		MaxConsecutiveErrors: 20,
	}
}

// AttemptStats describes one measurement attempt
type AttemptStats struct {
	ReadAttempts          int `json:"read_attempts"`
	MessageCount          int `json:"message_count"`
	ConsecutiveErrors     int `json:"consecutive_errors"`
	PeakConsecutiveErrors int `json:"peak_consecutive_errors"`
	RejectedFrames        int `json:"rejected_frames"`
	DiscardedFrames       int `json:"discarded_frames"`
}

// Reading is the terminal frame of a successful attempt
type Reading struct {
	Frame model.RawSensorFrame
	Stats AttemptStats
}

// IsDisplayReady reports whether a frame carries the readiness marker
func IsDisplayReady(frame string) bool {
	return strings.Contains(strings.ToLower(frame), strings.ToLower(DisplayReadyMessage))
}

// MeasurementProtocol drives the ready handshake and measurement exchange over a Transport
type MeasurementProtocol struct {
	transport Transport
	timing    Timing
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewMeasurementProtocol creates a protocol driver
func NewMeasurementProtocol(transport Transport, timing Timing, logger *zap.Logger) *MeasurementProtocol {
	return &MeasurementProtocol{
		transport: transport,
		timing:    timing,
		logger:    logger.With(zap.String("component", "measurement-protocol")),
		sleep:     sleepContext,
	}
}

// Measure waits for the ready signal and then for one valid measurement frame.
// Rejected frames are logged and skipped. Failed or empty reads never end the
// attempt: the consecutive-error counter is diagnostic only. Measure returns
// when a frame is decoded, the context ends, or the transport fails fatally.
func (p *MeasurementProtocol) Measure(ctx context.Context) (*Reading, error) {
	reader := NewFrameReader()
	stats := AttemptStats{}
	deviceReady := false

	p.logger.Info("Starting new measurement")

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stats.ReadAttempts++
		if stats.ReadAttempts%20 == 0 {
			p.logger.Debug("Measurement read progress",
				zap.Int("read_attempt", stats.ReadAttempts),
				zap.Bool("device_ready", deviceReady),
				zap.Int("message_count", stats.MessageCount),
				zap.Int("consecutive_errors", stats.ConsecutiveErrors),
			)
		}

		timeout := p.timing.DataReadTimeout
		if !deviceReady {
			timeout = p.timing.ReadyReadTimeout
		}

		chunk, err := p.transport.ReadChunk(ctx, timeout)
		if err != nil && !errors.Is(err, ErrReadFailed) {
			return nil, fmt.Errorf("failed to read from device: %w", err)
		}

		if len(chunk) > 0 {
			stats.ConsecutiveErrors = 0
			reader.Feed(chunk)

			p.logger.Debug("Raw data received", zap.Int("bytes", len(chunk)), zap.ByteString("data", chunk))

			processed := false
			for {
				frame, ok := reader.Next()
				if !ok {
					break
				}
				processed = true

				if !deviceReady {
					if IsDisplayReady(frame) {
						p.logger.Info("Display ready detected")
						deviceReady = true
						stats.MessageCount = 0
						continue
					}
					stats.DiscardedFrames++
					p.logger.Debug("Discarding frame before ready signal", zap.String("frame", frame))
					continue
				}

				stats.MessageCount++
				p.logger.Debug("Message received",
					zap.Int("message", stats.MessageCount),
					zap.String("frame", frame),
				)

				if !LooksLikeJSONObject(frame) {
					continue
				}

				decoded, err := DecodeMeasurementFrame(frame)
				if err != nil {
					stats.RejectedFrames++
					p.logger.Warn("Error parsing measurement frame", zap.String("frame", frame), zap.Error(err))
					continue
				}

				p.logger.Info("Measurement frame parsed",
					zap.String("firmware_version", decoded.FirmwareVersion),
					zap.Int("read_attempts", stats.ReadAttempts),
				)
				return &Reading{Frame: *decoded, Stats: stats}, nil
			}

			if !processed {
				p.logger.Debug("Buffer contents (no newline found)", zap.String("pending", reader.Pending()))
			}
		} else {
			if deviceReady {
				stats.ConsecutiveErrors++
				if stats.ConsecutiveErrors > stats.PeakConsecutiveErrors {
					stats.PeakConsecutiveErrors = stats.ConsecutiveErrors
				}
				if stats.ConsecutiveErrors == p.timing.MaxConsecutiveErrors {
					p.logger.Warn("Consecutive read errors reached limit, still waiting",
						zap.Int("consecutive_errors", stats.ConsecutiveErrors),
					)
				}
			}
			if err != nil {
				p.logger.Debug("Bulk read failed",
					zap.Error(err),
					zap.Int("consecutive_errors", stats.ConsecutiveErrors),
				)
			}
			if err := p.sleep(ctx, p.timing.RetryDelay); err != nil {
				return nil, err
			}
		}

		pace := p.timing.DataPollInterval
		if !deviceReady {
			pace = p.timing.ReadyPollInterval
		}
		if err := p.sleep(ctx, pace); err != nil {
			return nil, err
		}
	}
}

// FrameHandler receives every outcome of the passive listener: a decoded
// frame, or the error that prevented one
type FrameHandler func(frame *model.RawSensorFrame, err error)

// Listen reads continuously without waiting for the ready signal and reports
// every non-empty frame to handle. Read failures are reported and retried
// after ListenBackoff. Listen returns only when ctx ends.
func (p *MeasurementProtocol) Listen(ctx context.Context, handle FrameHandler) error {
	reader := NewFrameReader()

	p.logger.Info("Background reader started")
	defer p.logger.Info("Background reader stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := p.transport.ReadChunk(ctx, p.timing.DataReadTimeout)
		if err != nil && !errors.Is(err, ErrReadFailed) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("Error reading from device", zap.Error(err))
			handle(nil, fmt.Errorf("failed to read from device: %w", err))
			if err := p.sleep(ctx, p.timing.ListenBackoff); err != nil {
				return err
			}
			continue
		}
		if len(chunk) == 0 {
			continue
		}

		reader.Feed(chunk)
		for {
			frame, ok := reader.Next()
			if !ok {
				break
			}
			if frame == "" {
				continue
			}

			decoded, err := DecodeMeasurementFrame(frame)
			if err != nil {
				p.logger.Warn("Error parsing frame", zap.String("frame", frame), zap.Error(err))
				handle(nil, err)
				continue
			}
			handle(decoded, nil)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
