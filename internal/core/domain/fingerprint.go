package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
)

// Fingerprint derives the content key addressing cached annotations for one
// (document, page, OCR configuration) triple. Deterministic: identical
// inputs always produce the identical key, and changing any one input rolls
// the key, so an OCR parameter change can never hit a stale entry.
func Fingerprint(documentID string, pageIndex int, configSignature string) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", WrapError(ErrInvalidInput, "fingerprint", errors.New("empty document id"))
	}
	if pageIndex < 0 {
		return "", WrapError(ErrInvalidInput, "fingerprint", errors.New("negative page index"))
	}

	h := sha256.New()
	writeField := func(field string) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(field)))
		h.Write(length[:])
		h.Write([]byte(field))
	}

	// Length-prefixed fields keep boundaries unambiguous.
	writeField(documentID)
	var page [8]byte
	binary.BigEndian.PutUint64(page[:], uint64(pageIndex))
	h.Write(page[:])
	writeField(configSignature)

	return hex.EncodeToString(h.Sum(nil)), nil
}
