package gemini

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// Defaults used by the TTS models when the MIME type omits parameters.
const (
	defaultSampleRate    = 24000
	defaultBitsPerSample = 16
	defaultChannels      = 1
)

func isRawPCM(mimeType string) bool {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return strings.EqualFold(media, "audio/L16") || strings.EqualFold(media, "audio/pcm")
}

// PCMToWAV prefixes little-endian PCM samples with a RIFF/WAVE header. Rate
// and sample width are read from mimeType, e.g. "audio/L16;codec=pcm;rate=24000".
func PCMToWAV(pcm []byte, mimeType string) ([]byte, error) {
	rate, bits, err := pcmFormat(mimeType)
	if err != nil {
		return nil, err
	}

	blockAlign := defaultChannels * bits / 8
	byteRate := rate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(defaultChannels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

func pcmFormat(mimeType string) (rate, bits int, err error) {
	media, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid audio mime type %q: %w", mimeType, err)
	}

	rate, bits = defaultSampleRate, defaultBitsPerSample

	if v, ok := params["rate"]; ok {
		if rate, err = strconv.Atoi(v); err != nil || rate <= 0 {
			return 0, 0, fmt.Errorf("invalid sample rate %q", v)
		}
	}

	// audio/L24 and friends carry the width in the subtype
	if sub, ok := strings.CutPrefix(strings.ToUpper(media), "AUDIO/L"); ok {
		if bits, err = strconv.Atoi(sub); err != nil || bits <= 0 {
			return 0, 0, fmt.Errorf("invalid sample width in %q", media)
		}
	}

	return rate, bits, nil
}
