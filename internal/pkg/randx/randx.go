/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used for fixed-length Base62 room codes, guest user ids, and UUID session ids.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// RoomCodeLength is the fixed length required for generated room codes.
	RoomCodeLength = 6

	// GuestIDPrefix is the required prefix for guest user ids.
	GuestIDPrefix = "guest_"

	// GuestIDRawLength is the fixed length of the Base62 part of a guest id.
	GuestIDRawLength = 6
)

// base62String generates a Base62 string of the given length using crypto/rand.
func base62String(length int) (string, error) {
	result := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// RoomCode generates a Base62 encoded room code of length RoomCodeLength.
func RoomCode() (string, error) {
	return base62String(RoomCodeLength)
}

// GuestID generates a guest user id of the form "guest_" + 6 Base62 characters.
func GuestID() (string, error) {
	raw, err := base62String(GuestIDRawLength)
	if err != nil {
		return "", err
	}
	return GuestIDPrefix + raw, nil
}

// SessionID generates a UUID v4 string to uniquely identify a transport session.
func SessionID() string {
	return uuid.New().String()
}

// IsValidRoomCode checks if the given string is a valid room code:
// length equals RoomCodeLength and all characters belong to the Base62 set.
func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}

	for _, char := range code {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// IsValidGuestID checks if the given string is a valid guest id.
func IsValidGuestID(id string) bool {
	if !strings.HasPrefix(id, GuestIDPrefix) {
		return false
	}

	rawID := id[len(GuestIDPrefix):]

	if len(rawID) != GuestIDRawLength {
		return false
	}

	for _, char := range rawID {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// Nickname generates a random display name with a "User_" prefix.
func Nickname() (string, error) {
	raw, err := base62String(6)
	if err != nil {
		return "", err
	}
	return "User_" + raw, nil
}
