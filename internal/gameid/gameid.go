// Package gameid issues the identifiers used for rooms and sessions:
// UUIDv7 payloads rendered as 26 characters of Crockford base32, so IDs
// sort by creation time and stay URL-safe.
package gameid

import (
	"crypto/rand"
	"fmt"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// RandSource lets tests pin the random tail of generated IDs.
type RandSource interface {
	Intn(n int) int
}

// Generator produces IDs, optionally from an injected random source.
type Generator struct {
	src RandSource
}

// NewGenerator returns a Generator. A nil source means crypto/rand.
func NewGenerator(src RandSource) *Generator {
	return &Generator{src: src}
}

// Generate returns a fresh ID using crypto/rand.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate returns a fresh time-ordered ID.
func (g *Generator) Generate() string {
	var u [16]byte

	// 48-bit millisecond timestamp, then version 7 and variant bits over
	// random filler.
	now := time.Now().UnixMilli()
	for i := 0; i < 6; i++ {
		u[i] = byte(now >> (40 - 8*i))
	}
	if g.src != nil {
		for i := 6; i < 16; i++ {
			u[i] = byte(g.src.Intn(256))
		}
	} else if _, err := rand.Read(u[6:]); err != nil {
		panic("gameid: crypto/rand failed: " + err.Error())
	}
	u[6] = (u[6] & 0x0f) | 0x70
	u[8] = (u[8] & 0x3f) | 0x80

	return encode(u)
}

// encode renders 128 bits as 26 base32 characters, 5 bits at a time.
func encode(u [16]byte) string {
	out := make([]byte, 26)
	for i := range out {
		off := i * 5
		byteIdx, bitIdx := off/8, off%8

		var v uint8
		if byteIdx < 16 {
			if bitIdx <= 3 {
				v = (u[byteIdx] >> (3 - bitIdx)) & 0x1f
			} else {
				v = (u[byteIdx] << (bitIdx - 3)) & 0x1f
				if byteIdx+1 < 16 {
					v |= u[byteIdx+1] >> (11 - bitIdx)
				}
			}
		}
		out[i] = alphabet[v]
	}
	return string(out)
}

// Validate checks that a string is a well-formed ID.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("id must be 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("id first character out of range: %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		ok := false
		for j := 0; j < len(alphabet); j++ {
			if id[i] == alphabet[j] {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("id contains invalid character %c at %d", id[i], i)
		}
	}
	return nil
}
