package usecase

import (
	"crypto/rand"
	"io"
	"strings"
)

const (
	upperAlphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	mixedAlphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	activationCodeLength = 32
	activationCodeGroup  = 8
	cardKeyLength        = 16
	invitationCodeLength = 16

	// maxGenerateAttempts bounds collision retries so generation can never
	// loop forever, even against an almost-full keyspace.
	maxGenerateAttempts = 10
)

// generateToken creates a secure random token from the given alphabet.
// A groupSize > 0 inserts a '-' between fixed-size groups.
func generateToken(length int, alphabet string, groupSize int) (string, error) {
	buffer := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 0; i < length; i++ {
		if groupSize > 0 && i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(buffer[i])%len(alphabet)])
	}
	return b.String(), nil
}

// generateActivationCode produces a 32-char uppercase token grouped in 8s:
// XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX.
func generateActivationCode() (string, error) {
	return generateToken(activationCodeLength, upperAlphanumeric, activationCodeGroup)
}

// generateCardKey produces a 16-char mixed-case token, ungrouped.
func generateCardKey() (string, error) {
	return generateToken(cardKeyLength, mixedAlphanumeric, 0)
}

// generateInvitationCode produces a 16-char uppercase token.
func generateInvitationCode() (string, error) {
	return generateToken(invitationCodeLength, upperAlphanumeric, 0)
}
