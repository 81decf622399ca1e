package chat

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// generateOTP 產生 6 位數字確認碼 (100000-999999)
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate meetup otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
