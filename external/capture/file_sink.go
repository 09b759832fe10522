package capture

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hibikilab/kikitori/internal/capture"
)

type pcmDecoder interface {
	Decode(packet []byte) ([]byte, error)
}

// FileSink accumulates one participant's decoded PCM in a raw file and wraps
// it into a WAV asset on finalize. It is driven by a single capture worker
// goroutine, so no locking is needed.
type FileSink struct {
	rawPath  string
	wavPath  string
	file     *os.File
	buf      *bufio.Writer
	dec      pcmDecoder
	pcmBytes int64
}

func NewFileSink(dir, sessionID, userID string) (capture.Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	// A user who leaves and rejoins gets a fresh capture in the same
	// session; the per-capture id keeps the earlier asset intact.
	base := filepath.Join(dir, fmt.Sprintf("%s-%s-%s", sessionID, userID, uuid.NewString()))
	f, err := os.Create(base + ".pcm")
	if err != nil {
		return nil, fmt.Errorf("create raw capture file: %w", err)
	}
	dec, err := newPCMDecoder()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(base + ".pcm")
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &FileSink{
		rawPath: base + ".pcm",
		wavPath: base + ".wav",
		file:    f,
		buf:     bufio.NewWriterSize(f, 64*1024),
		dec:     dec,
	}, nil
}

func (s *FileSink) Write(chunk []byte) error {
	pcm, err := s.dec.Decode(chunk)
	if err != nil {
		// A single undecodable packet is skipped, not fatal to the capture.
		return nil
	}
	n, err := s.buf.Write(pcm)
	s.pcmBytes += int64(n)
	if err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return nil
}

func (s *FileSink) Finalize() (capture.Asset, error) {
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return capture.Asset{}, fmt.Errorf("flush pcm: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return capture.Asset{}, fmt.Errorf("close raw capture file: %w", err)
	}

	if s.pcmBytes == 0 {
		_ = os.Remove(s.rawPath)
		return capture.Asset{}, nil
	}

	pcm, err := os.ReadFile(s.rawPath)
	if err != nil {
		return capture.Asset{}, fmt.Errorf("read raw capture file: %w", err)
	}
	wav, err := encodeWAV(pcm)
	if err != nil {
		return capture.Asset{}, fmt.Errorf("encode wav: %w", err)
	}
	if err := os.WriteFile(s.wavPath, wav, 0o644); err != nil {
		return capture.Asset{}, fmt.Errorf("write wav asset: %w", err)
	}
	_ = os.Remove(s.rawPath)

	return capture.Asset{
		Path:     s.wavPath,
		Bytes:    int64(len(wav)),
		Duration: pcmDuration(s.pcmBytes),
	}, nil
}
