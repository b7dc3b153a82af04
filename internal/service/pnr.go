package service

import (
	"crypto/rand"
	"fmt"

	"github.com/bakate/avionics/internal/domain"
)

const pnrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generatePnr allocates a random six-character PNR locator, per spec
// §3's PnrCode format.
func generatePnr() (domain.PnrCode, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pnr: %w", err)
	}
	for i, b := range buf {
		buf[i] = pnrAlphabet[int(b)%len(pnrAlphabet)]
	}
	return domain.NewPnrCode(string(buf))
}
