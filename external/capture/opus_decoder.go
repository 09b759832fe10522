//go:build opus

package capture

import (
	"encoding/binary"

	"github.com/hraban/opus"
)

const (
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000
)

type opusDecoder struct {
	dec *opus.Decoder
}

func newPCMDecoder() (pcmDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm := make([]int16, samplesPerFrame)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	totalSamples := n * channels
	if totalSamples > samplesPerFrame {
		totalSamples = samplesPerFrame
	}
	out := make([]byte, totalSamples*2)
	for i := 0; i < totalSamples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
	}
	return out, nil
}
