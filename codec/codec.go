// Package codec converts audio between the call-side telephony encoding
// (G.711 μ-law, 8 kHz, one byte per sample) and the model-side encoding
// (16-bit little-endian linear PCM, 24 kHz).
//
// All conversions are pure and safe for concurrent use. A malformed frame
// yields an *Error naming its origin; the caller drops the frame and keeps
// the stream alive.
package codec

import (
	"fmt"

	"github.com/zaf/g711"
)

const (
	// CallRate is the telephony sample rate.
	CallRate = 8000
	// ModelRate is the model-native PCM sample rate.
	ModelRate = 24000
	// BytesPerSample is the PCM sample container size.
	BytesPerSample = 2
)

// Origin tags which side of the relay produced a bad frame.
type Origin string

const (
	OriginCall  Origin = "call"
	OriginModel Origin = "model"
)

type Error struct {
	Origin Origin
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: bad %s frame: %s", e.Origin, e.Reason)
}

func badFrame(origin Origin, format string, args ...any) *Error {
	return &Error{Origin: origin, Reason: fmt.Sprintf(format, args...)}
}

// Adapter converts opaque audio frames between the call transport's encoding
// and the model's. Implementations are stateless.
type Adapter interface {
	// ToModel converts one call-native frame to model-native PCM.
	ToModel(frame []byte) ([]byte, error)
	// ToCall converts one model-native PCM frame to the call encoding.
	ToCall(frame []byte) ([]byte, error)
}

// DecodeULaw expands μ-law bytes to 16-bit linear PCM at the same rate.
func DecodeULaw(frame []byte) []byte {
	return g711.DecodeUlaw(frame)
}

// EncodeULaw compands 16-bit linear PCM to μ-law at the same rate. The
// input must be sample aligned.
func EncodeULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, badFrame(OriginModel, "pcm length %d is not sample aligned", len(pcm))
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULaw bridges a G.711 μ-law telephony stream to model-rate PCM.
type ULaw struct{}

func (ULaw) ToModel(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, badFrame(OriginCall, "empty frame")
	}
	pcm := g711.DecodeUlaw(frame)
	return Resample(pcm, CallRate, ModelRate)
}

func (ULaw) ToCall(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, badFrame(OriginModel, "empty frame")
	}
	if len(frame)%BytesPerSample != 0 {
		return nil, badFrame(OriginModel, "frame length %d is not sample aligned", len(frame))
	}
	pcm, err := Resample(frame, ModelRate, CallRate)
	if err != nil {
		return nil, err
	}
	return g711.EncodeUlaw(pcm), nil
}

// Passthrough is the browser variant: the transport already speaks
// model-native PCM, so frames cross unchanged (length check only).
type Passthrough struct{}

func (Passthrough) ToModel(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, badFrame(OriginCall, "empty frame")
	}
	if len(frame)%BytesPerSample != 0 {
		return nil, badFrame(OriginCall, "frame length %d is not sample aligned", len(frame))
	}
	return frame, nil
}

func (Passthrough) ToCall(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, badFrame(OriginModel, "empty frame")
	}
	if len(frame)%BytesPerSample != 0 {
		return nil, badFrame(OriginModel, "frame length %d is not sample aligned", len(frame))
	}
	return frame, nil
}
