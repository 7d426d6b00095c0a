package domain

import (
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	inviteAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	InviteCodeLength = 8
)

// GenerateInviteCode returns an 8-character uppercase alphanumeric token.
// Uniqueness is not guaranteed here; the caller reserves the code.
func GenerateInviteCode() (string, error) {
	gen, err := nanoid.CustomASCII(inviteAlphabet, InviteCodeLength)
	if err != nil {
		return "", err
	}
	return gen(), nil
}

// NormalizeInviteCode applies the same normalisation as code entry does.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValidInviteCode(code string) bool {
	if len(code) != InviteCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(inviteAlphabet, c) {
			return false
		}
	}
	return true
}
