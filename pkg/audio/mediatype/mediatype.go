// ABOUTME: Conversion between audio/L16-style media types and PCM formats
// ABOUTME: Shared by the server's upload and download paths and the player's watch loop
package mediatype

import (
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
)

// Parse maps a media type such as "audio/L16;codec=pcm;rate=24000" to a format.
// Missing parameters fall back to audio.DefaultFormat; an empty string yields the default.
func Parse(v string) (audio.Format, error) {
	format := audio.DefaultFormat
	if strings.TrimSpace(v) == "" {
		return format, nil
	}

	mediaType, params, err := mime.ParseMediaType(v)
	if err != nil {
		return audio.Format{}, &audio.MalformedInputError{Op: "mime", Reason: err.Error()}
	}

	switch mediaType {
	case "audio/l8":
		format.BitDepth = 8
	case "audio/l16", "audio/pcm", "audio/x-pcm", "application/octet-stream":
		format.BitDepth = 16
	case "audio/l24":
		format.BitDepth = 24
	case "audio/l32":
		format.BitDepth = 32
	default:
		return audio.Format{}, &audio.MalformedInputError{Op: "mime", Reason: fmt.Sprintf("unsupported media type %q", mediaType)}
	}

	if codec, ok := params["codec"]; ok && !strings.EqualFold(codec, "pcm") {
		return audio.Format{}, &audio.MalformedInputError{Op: "mime", Reason: fmt.Sprintf("unsupported codec %q", codec)}
	}
	if rate, ok := params["rate"]; ok {
		n, err := strconv.Atoi(rate)
		if err != nil || n <= 0 {
			return audio.Format{}, &audio.MalformedInputError{Op: "mime", Reason: fmt.Sprintf("invalid rate %q", rate)}
		}
		format.SampleRate = n
	}
	if channels, ok := params["channels"]; ok {
		n, err := strconv.Atoi(channels)
		if err != nil || n <= 0 {
			return audio.Format{}, &audio.MalformedInputError{Op: "mime", Reason: fmt.Sprintf("invalid channels %q", channels)}
		}
		format.Channels = n
	}
	return format, format.Validate()
}

// ContentType returns the media type served for a stored clip.
// The default format is served as plain audio/L16.
func ContentType(f audio.Format) string {
	f = f.OrDefault()
	base := fmt.Sprintf("audio/L%d", f.BitDepth)
	if f == audio.DefaultFormat {
		return base
	}
	return fmt.Sprintf("%s;rate=%d;channels=%d", base, f.SampleRate, f.Channels)
}

// MimeType returns the synthesis-style description of a format.
// Channels are only named when the clip is not mono.
func MimeType(f audio.Format) string {
	f = f.OrDefault()
	s := fmt.Sprintf("audio/L%d;codec=pcm;rate=%d", f.BitDepth, f.SampleRate)
	if f.Channels != 1 {
		s += fmt.Sprintf(";channels=%d", f.Channels)
	}
	return s
}
