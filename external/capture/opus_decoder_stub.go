//go:build !opus

package capture

// passthroughDecoder stands in when the cgo opus bindings are not built;
// packets are stored as-is so the pipeline stays testable without libopus.
type passthroughDecoder struct{}

func newPCMDecoder() (pcmDecoder, error) {
	return passthroughDecoder{}, nil
}

func (passthroughDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet)%2 != 0 {
		packet = append(packet, 0)
	}
	return packet, nil
}
