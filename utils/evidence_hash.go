package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// GenerateEvidenceHash generates a SHA-256 hash for proof-image integrity.
//
// Hash input is RAW BYTES only:
//   image_bytes (raw) || latitude (float64 LE) || longitude (float64 LE) || captured_at (Unix nano int64 LE)
//
// The timestamp MUST be server-generated at upload time. The hash is an
// integrity signal (detects tampering after capture), not authenticity proof.
func GenerateEvidenceHash(
	imageBytes []byte,
	latitude float64,
	longitude float64,
	capturedAt time.Time,
) string {
	buf := bytes.NewBuffer(imageBytes)

	_ = binary.Write(buf, binary.LittleEndian, latitude)
	_ = binary.Write(buf, binary.LittleEndian, longitude)
	_ = binary.Write(buf, binary.LittleEndian, capturedAt.UnixNano())

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:])
}
