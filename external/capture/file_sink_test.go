package capture

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/hibikilab/kikitori/internal/capture"
)

func TestFileSink_WriteFinalize(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "session-1", "user-1")
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	chunks := [][]byte{{0x01, 0x02}, {0x03, 0x04}, {0x05, 0x06}}
	for _, c := range chunks {
		if err := sink.Write(c); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	asset, err := sink.Finalize()
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("failed to read asset: %v", err)
	}
	if len(data) != 44+6 {
		t.Fatalf("unexpected asset size: %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("asset is not a WAV file")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != sampleRate {
		t.Fatalf("unexpected sample rate in header: %d", got)
	}
	if !bytes.Equal(data[44:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}) {
		t.Fatal("PCM byte order not preserved in asset")
	}
	if asset.Bytes != int64(len(data)) {
		t.Fatalf("asset size mismatch: %d != %d", asset.Bytes, len(data))
	}
}

func TestFileSink_EmptyCapture(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "session-1", "user-1")
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	asset, err := sink.Finalize()
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if asset.Path != "" || asset.Bytes != 0 {
		t.Fatalf("expected empty asset, got %+v", asset)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list capture dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}

func TestFileSink_RejoinKeepsEarlierAsset(t *testing.T) {
	dir := t.TempDir()
	mux := capture.NewMultiplexer("sess-1", func(sessionID, userID string) (capture.Sink, error) {
		return NewFileSink(dir, sessionID, userID)
	}, nil)

	closeAndAwait := func(userID string) capture.Asset {
		t.Helper()
		done, err := mux.Close(userID)
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
		res := <-done
		if res.Status != capture.StatusFinalized {
			t.Fatalf("expected finalized capture, got %s (%v)", res.Status, res.Err)
		}
		return res.Asset
	}

	if err := mux.Open("u1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := mux.Feed("u1", []byte("AAAAAAAA")); err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	first := closeAndAwait("u1")

	if err := mux.Open("u1"); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := mux.Feed("u1", []byte("BBBBBBBB")); err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	second := closeAndAwait("u1")

	if first.Path == second.Path {
		t.Fatalf("rejoin capture reused asset path %s", first.Path)
	}
	data, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatalf("failed to read first asset: %v", err)
	}
	if !bytes.Equal(data[44:], []byte("AAAAAAAA")) {
		t.Fatalf("first capture's audio replaced: %q", data[44:])
	}
}

func TestEncodeWAV_RejectsEmptyAndOdd(t *testing.T) {
	if _, err := encodeWAV(nil); err == nil {
		t.Fatal("expected error for empty PCM")
	}
	if _, err := encodeWAV([]byte{0x01}); err == nil {
		t.Fatal("expected error for odd-length PCM")
	}
}
