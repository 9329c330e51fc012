package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/faiface/beep"
)

type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	samples := make([]int16, len(b)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &pcmStreamer{data: samples}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, false
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val // duplicate mono to stereo
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// Resample converts 16-bit mono PCM between sample rates.
func Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, badFrame(OriginCall, "pcm length %d is not sample aligned", len(pcm))
	}
	if fromRate == toRate {
		return pcm, nil
	}

	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcm))

	buf := new(bytes.Buffer)
	sample := make([][2]float64, 1024)

	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := (sample[i][0] + sample[i][1]) / 2.0
			if err := binary.Write(buf, binary.LittleEndian, int16(mono*32767)); err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}
