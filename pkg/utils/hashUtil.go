package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
)

// HashString returns the hex sha256 of data.
func HashString(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Digest accumulates length-prefixed fields into a sha256 hash,
// so that ("ab","c") and ("a","bc") never collide.
type Digest struct {
	h hash.Hash
}

func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Field writes an 8-byte big-endian length followed by data.
func (d *Digest) Field(data string) *Digest {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	d.h.Write(prefix[:])
	io.WriteString(d.h, data)
	return d
}

// Count writes a list length so that list boundaries are unambiguous.
func (d *Digest) Count(n int) *Digest {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return d.Field(string(buf[:]))
}

// Bool writes a single-byte field.
func (d *Digest) Bool(b bool) *Digest {
	if b {
		return d.Field("\x01")
	}
	return d.Field("\x00")
}

// Strings writes a counted list of fields.
func (d *Digest) Strings(items []string) *Digest {
	d.Count(len(items))
	for _, s := range items {
		d.Field(s)
	}
	return d
}

// Hex returns the hex-encoded digest.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
