// ABOUTME: Chunked base64 transcoder for PCM payloads
// ABOUTME: Strict standard-alphabet decode and bounded-memory encode
package transcode

import (
	"fmt"
	"io"
	"strings"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/cloudwego/base64x"
)

const (
	// DecodeChunk is the number of characters decoded per step (a multiple of 4)
	DecodeChunk = 8192

	// EncodeChunk is the number of bytes encoded per step.
	// The largest multiple of 3 not above 8 KiB, so chunk outputs concatenate without padding.
	EncodeChunk = 8190
)

var codec = base64x.StdEncoding

// EncodedLen returns the text length for n payload bytes
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// DecodedLen returns the payload length of a valid encoded string
func DecodedLen(s string) int {
	n := len(s) / 4 * 3
	if strings.HasSuffix(s, "==") {
		n -= 2
	} else if strings.HasSuffix(s, "=") {
		n--
	}
	return n
}

// Encode converts a payload to standard padded base64
func Encode(b []byte) string {
	var sb strings.Builder
	sb.Grow(EncodedLen(len(b)))

	dst := make([]byte, EncodedLen(min(len(b), EncodeChunk)))
	for off := 0; off < len(b); off += EncodeChunk {
		chunk := b[off:min(off+EncodeChunk, len(b))]
		n := EncodedLen(len(chunk))
		codec.Encode(dst[:n], chunk)
		sb.Write(dst[:n])
	}
	return sb.String()
}

// Decode converts standard padded base64 back to a payload.
// Whitespace, URL-safe characters and misplaced padding are rejected.
func Decode(s string) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	// Sized for full quanta, trimmed after the final padded chunk
	out := make([]byte, len(s)/4*3)
	src := make([]byte, min(len(s), DecodeChunk))
	written := 0
	for off := 0; off < len(s); off += DecodeChunk {
		end := min(off+DecodeChunk, len(s))
		n := copy(src, s[off:end])
		m, err := codec.Decode(out[written:], src[:n])
		if err != nil {
			return nil, &audio.MalformedInputError{Op: "base64", Reason: err.Error(), Offset: off}
		}
		written += m
	}
	return out[:written], nil
}

// Validate checks s against the standard alphabet and padding rules
func Validate(s string) error {
	if len(s)%4 != 0 {
		return &audio.MalformedInputError{
			Op:     "base64",
			Reason: fmt.Sprintf("length %d is not a multiple of 4", len(s)),
			Offset: len(s),
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' {
			// Padding may only fill the last one or two positions
			if i < len(s)-2 || (i == len(s)-2 && s[len(s)-1] != '=') {
				return &audio.MalformedInputError{Op: "base64", Reason: "padding before final quantum", Offset: i}
			}
			continue
		}
		if !isStdAlphabet(c) {
			return &audio.MalformedInputError{Op: "base64", Reason: fmt.Sprintf("illegal character %q", c), Offset: i}
		}
	}

	// The bits of the last data character that fall past the payload must be zero
	if n := len(s); n > 0 && s[n-1] == '=' {
		last, unused := n-2, byte(0x03)
		if s[n-2] == '=' {
			last, unused = n-3, 0x0f
		}
		if stdValue(s[last])&unused != 0 {
			return &audio.MalformedInputError{Op: "base64", Reason: "non-zero trailing bits", Offset: last}
		}
	}
	return nil
}

// stdValue returns the 6-bit value of a standard alphabet character
func stdValue(c byte) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c - 'A'
	case c >= 'a' && c <= 'z':
		return c - 'a' + 26
	case c >= '0' && c <= '9':
		return c - '0' + 52
	case c == '+':
		return 62
	default:
		return 63
	}
}

func isStdAlphabet(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/':
		return true
	}
	return false
}

// EncodeStream reads r to EOF and writes its base64 text to w.
// Memory use is bounded by one chunk regardless of the stream size.
func EncodeStream(w io.Writer, r io.Reader) (int64, error) {
	src := make([]byte, EncodeChunk)
	dst := make([]byte, EncodedLen(EncodeChunk))
	var total int64

	for {
		n, err := io.ReadFull(r, src)
		if n > 0 {
			m := EncodedLen(n)
			codec.Encode(dst[:m], src[:n])
			written, werr := w.Write(dst[:m])
			total += int64(written)
			if werr != nil {
				return total, fmt.Errorf("failed to write encoded chunk: %w", werr)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("failed to read payload: %w", err)
		}
	}
}
