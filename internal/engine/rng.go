// Package engine provides the reproducible random source every minigame
// draws from during generation.
package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Rand is the randomness capability handed to minigame generators.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Intn returns a value in [0, n). n must be > 0.
	Intn(n int) int
}

// Seeds identifies one attempt's random stream.
type Seeds struct {
	Server string `json:"server"` // ASCII; do NOT hex-decode
	Client string `json:"client"`
}

// NewSeeds returns a fresh pair of random seeds.
func NewSeeds() Seeds {
	return Seeds{
		Server: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Client: uuid.NewString()[:8],
	}
}

// HashSeed returns the hex SHA256 of a seed, for logs and storage.
func HashSeed(seed string) string {
	if seed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ByteGenerator streams HMAC-SHA256 bytes keyed by the server seed over
// "client:nonce:round" messages.
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a generator positioned at cursor bytes into the stream.
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the stream.
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat consumes exactly 4 bytes and maps them into [0, 1).
func (bg *ByteGenerator) NextFloat() float64 {
	return bytesToFloat([4]byte{bg.Next(), bg.Next(), bg.Next(), bg.Next()})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat computes b0/256 + b1/256² + b2/256³ + b3/256⁴.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats generates count floats starting from the given cursor.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	bg := NewByteGenerator(serverSeed, clientSeed, nonce, cursor)
	floats := make([]float64, count)
	for i := range floats {
		floats[i] = bg.NextFloat()
	}
	return floats
}

// Source adapts a ByteGenerator to Rand. Two Sources built from the same
// seeds and nonce produce identical sequences.
type Source struct {
	bg *ByteGenerator
}

// NewSource returns a Source positioned at the start of the stream.
func NewSource(seeds Seeds, nonce uint64) *Source {
	return &Source{bg: NewByteGenerator(seeds.Server, seeds.Client, nonce, 0)}
}

// Float64 implements Rand.
func (s *Source) Float64() float64 {
	return s.bg.NextFloat()
}

// Intn implements Rand by flooring a float scaled to n.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("engine: Intn called with n <= 0")
	}
	i := int(math.Floor(s.Float64() * float64(n)))
	if i >= n {
		i = n - 1
	}
	return i
}
