// Package fair implements the provably fair random source shared by every
// game. A (server seed, nonce) pair maps to a uniform float in [0,1) via
// HMAC-SHA256, so any outcome can be recomputed by the player once the
// server seed is revealed.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Uniform derives a deterministic float in [0,1) from a server seed and
// nonce. The nonce is hashed as its decimal string under the seed as HMAC
// key, and the first 52 bits (13 hex chars) of the digest are divided by
// 2^52. Same inputs always produce the same output on every platform.
func Uniform(serverSeed string, nonce int64) (float64, error) {
	if serverSeed == "" {
		return 0, fmt.Errorf("server seed must not be empty")
	}

	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(strconv.FormatInt(nonce, 10)))
	digest := hex.EncodeToString(h.Sum(nil))

	n := new(big.Int)
	n.SetString(digest[:13], 16)

	return float64(n.Int64()) / math.Pow(2, 52), nil
}

// GenerateServerSeed returns 256 bits of entropy as a hex string.
func GenerateServerSeed() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

// SeedHash returns the sha256 commitment of a server seed. The hash is
// published before play; the seed itself only after the outcome is final.
func SeedHash(serverSeed string) string {
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}
