package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// ErrUnreadable is returned when a file's content cannot be fingerprinted.
var ErrUnreadable = errors.New("store: file unreadable")

// Fingerprint is a 128-bit content digest. The zero value stands for a file
// that could not be read; it is never Valid and never Equal to anything, so
// two unreadable files cannot be mistaken for the same content.
type Fingerprint struct {
	sum string
}

// FingerprintBytes digests content.
func FingerprintBytes(content []byte) Fingerprint {
	return fromSum(xxh3.Hash128(content))
}

// FingerprintFile streams the file at path through the digest. On any I/O
// error it returns the invalid Fingerprint and an error wrapping
// ErrUnreadable.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return fromSum(h.Sum128()), nil
}

// ParseFingerprint restores a Fingerprint from its String form. The empty
// string yields the invalid Fingerprint.
func ParseFingerprint(s string) Fingerprint {
	return Fingerprint{sum: s}
}

func fromSum(u xxh3.Uint128) Fingerprint {
	return Fingerprint{sum: fmt.Sprintf("%016x%016x", u.Hi, u.Lo)}
}

// Valid reports whether the file was read successfully.
func (f Fingerprint) Valid() bool {
	return f.sum != ""
}

// Equal reports whether both fingerprints are valid and identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Valid() && f.sum == other.sum
}

func (f Fingerprint) String() string {
	return f.sum
}
