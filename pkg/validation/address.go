package validation

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// addressHexLength is the length of a Core address (22 bytes) in hex
	addressHexLength = 44
	// hashHexLength is the length of a transaction hash (32 bytes) in hex
	hashHexLength = 64
)

// ValidateAddress validates a blockchain address format
func ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("address cannot be empty")
	}

	normalized := NormalizeAddress(addr)

	if len(normalized) != addressHexLength {
		return fmt.Errorf("invalid address length: expected %d characters (without 0x), got %d", addressHexLength, len(normalized))
	}

	if _, err := hex.DecodeString(normalized); err != nil {
		return fmt.Errorf("invalid hex address: %w", err)
	}

	return nil
}

// NormalizeAddress converts an address to lowercase without 0x prefix.
// Every address entering the system passes through here, so comparisons
// downstream are plain string equality.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "0x")
	addr = strings.TrimPrefix(addr, "0X")
	return strings.ToLower(addr)
}

// ValidateAndNormalizeAddress validates an address and returns its normalized form
func ValidateAndNormalizeAddress(addr string) (string, error) {
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return NormalizeAddress(addr), nil
}

// NormalizeTxHash validates a transaction hash and returns it lowercase
// without 0x prefix.
func NormalizeTxHash(hash string) (string, error) {
	normalized := NormalizeAddress(hash)
	if normalized == "" {
		return "", fmt.Errorf("transaction hash cannot be empty")
	}
	if len(normalized) != hashHexLength {
		return "", fmt.Errorf("invalid transaction hash length: expected %d characters (without 0x), got %d", hashHexLength, len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("invalid hex transaction hash: %w", err)
	}
	return normalized, nil
}

// ValidateUUID accepts only the canonical 36 character form of an RFC 4122
// UUID with version 1 to 5.
func ValidateUUID(id string) error {
	id = strings.TrimSpace(id)
	if len(id) != 36 {
		return fmt.Errorf("invalid UUID length: %d", len(id))
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid UUID: %w", err)
	}
	if parsed.Variant() != uuid.RFC4122 {
		return fmt.Errorf("invalid UUID variant")
	}
	if v := parsed.Version(); v < 1 || v > 5 {
		return fmt.Errorf("invalid UUID version %d", v)
	}
	return nil
}
