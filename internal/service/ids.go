package service

import (
	"crypto/rand"
	"fmt"
	"io"

	"berserk/internal/clock"
	"berserk/internal/models"
)

const (
	idAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idSuffixLen  = 9
	idRejectFrom = 256 - 256%len(idAlphabet)
)

// IDGenerator issues BT-<unix millis>-<9 chars> booking ids.
type IDGenerator struct {
	clock  clock.Clock
	random io.Reader
}

// NewIDGenerator uses crypto/rand when random is nil.
func NewIDGenerator(clk clock.Clock, random io.Reader) *IDGenerator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if random == nil {
		random = rand.Reader
	}
	return &IDGenerator{clock: clk, random: random}
}

func (g *IDGenerator) NewBookingID() (string, error) {
	suffix := make([]byte, 0, idSuffixLen)
	buf := make([]byte, 16)
	for len(suffix) < idSuffixLen {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			// Rejection keeps every symbol equally likely.
			if int(b) >= idRejectFrom {
				continue
			}
			suffix = append(suffix, idAlphabet[int(b)%len(idAlphabet)])
			if len(suffix) == idSuffixLen {
				break
			}
		}
	}
	return fmt.Sprintf("%s-%d-%s", models.BookingIDPrefix, g.clock.Now().UnixMilli(), suffix), nil
}
