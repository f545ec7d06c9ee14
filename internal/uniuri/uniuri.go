package uniuri

import (
	"crypto/rand"
)

// StdLen is the standard identifier length, about 95 bits of entropy.
const StdLen = 16

// StdChars is the alphabet of generated identifiers.
var StdChars = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789") //nolint:gochecknoglobals

// New returns a random identifier of StdLen characters.
func New() string {
	return NewLen(StdLen)
}

// NewLen returns a random identifier of length characters from StdChars.
func NewLen(length int) string {
	return string(NewLenChars(length, StdChars))
}

// NewLenChars returns length random characters drawn uniformly from chars,
// which must hold between 2 and 256 bytes.
func NewLenChars(length int, chars []byte) []byte {
	if length <= 0 {
		return nil
	}

	clen := len(chars)
	if clen < 2 || clen > 256 {
		panic("uniuri: wrong charset length")
	}

	// bytes above maxRb are rejected to avoid modulo bias
	maxRb := 255 - (256 % clen)
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("uniuri: error reading random bytes: " + err.Error())
		}

		for _, rb := range buf {
			if int(rb) > maxRb {
				continue
			}

			out = append(out, chars[int(rb)%clen])
			if len(out) == length {
				break
			}
		}
	}

	return out
}
