package leaseid

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxLength is the default upper bound for a candidate lease id.
const MaxLength = 128

const separator = "."

var (
	// ErrMalformed is returned by Check for ids that are empty, too long, or
	// contain characters outside the URL-safe set.
	ErrMalformed = errors.New("malformed lease id")
	// ErrInvalidLimit is returned when a non-positive length limit is supplied.
	ErrInvalidLimit = errors.New("invalid lease id length limit")
)

// Mint builds a new candidate lease id stamped with now.
//
// Mint is pure apart from reading crypto/rand; it performs no I/O against the
// registry.
func Mint(now time.Time, fp Fingerprint) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}

	if fp == "" {
		return id.String(), nil
	}
	return id.String() + separator + string(fp), nil
}

// Check reports whether id is a syntactically acceptable lease id no longer
// than maxLen bytes. A maxLen of 0 selects MaxLength.
func Check(id string, maxLen int) error {
	if maxLen < 0 {
		return ErrInvalidLimit
	}
	if maxLen == 0 {
		maxLen = MaxLength
	}
	if id == "" || len(id) > maxLen {
		return ErrMalformed
	}
	for i := 0; i < len(id); i++ {
		if !allowed(id[i]) {
			return ErrMalformed
		}
	}
	return nil
}

// Valid is Check with the default length limit.
func Valid(id string) bool {
	return Check(id, MaxLength) == nil
}

func allowed(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	default:
		return false
	}
}

// Info is the diagnostic content of a lease id minted by Mint.
type Info struct {
	MintedAt    time.Time
	Fingerprint Fingerprint
}

// Describe decodes the timestamp and fingerprint of an id produced by Mint.
// It is best-effort: ids from other minting schemes report ok=false.
// The result is for audit and support output only.
func Describe(id string) (Info, bool) {
	head, fp, _ := strings.Cut(id, separator)

	parsed, err := ulid.ParseStrict(head)
	if err != nil {
		return Info{}, false
	}

	return Info{
		MintedAt:    ulid.Time(parsed.Time()).UTC(),
		Fingerprint: Fingerprint(fp),
	}, true
}
