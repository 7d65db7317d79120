package audio

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestDurationOfDefaultEncoding(t *testing.T) {
	info := GetDefaultEncodingInfo()

	// 16 kHz mono linear16 is 32000 bytes per second.
	if got, want := info.Duration(make([]byte, 3200)), 100*time.Millisecond; got != want {
		t.Fatalf("expected duration %v, got %v", want, got)
	}
	if got := info.Duration(nil); got != 0 {
		t.Fatalf("expected zero duration for empty payload, got %v", got)
	}
}

func TestDecodeChunkAcceptsUnpaddedBase64(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	unpadded := base64.RawStdEncoding.EncodeToString(raw)

	decoded, err := DecodeChunk(unpadded)
	if err != nil {
		t.Fatalf("expected unpadded chunk to decode, got %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("expected %v, got %v", raw, decoded)
	}
}

func TestDecodeChunkRejectsGarbage(t *testing.T) {
	if _, err := DecodeChunk("!!!not base64!!!"); err == nil {
		t.Fatalf("expected garbage input to fail decoding")
	}
}

func TestWireName(t *testing.T) {
	if got := GetDefaultEncodingInfo().WireName(); got != "pcm_s16le" {
		t.Fatalf("expected pcm_s16le, got %q", got)
	}
}
