package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns 32 random hex characters, prefixed with prefix and "_" when
// prefix is set.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewDocumentID returns the identifier a remote store assigns to a new document.
func NewDocumentID() string {
	return uuid.NewString()
}

// NewClientID builds a per-profile client identifier of the form
// "<unix millis>-<7 base36 chars>".
func NewClientID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomBase36(7)
}

// DeviceName derives the default human-readable name for a client id.
func DeviceName(clientID string) string {
	suffix := clientID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "Device-" + suffix
}

func randomBase36(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = base36Alphabet[time.Now().UnixNano()%int64(len(base36Alphabet))]
			continue
		}
		out[i] = base36Alphabet[idx.Int64()]
	}
	return string(out)
}
