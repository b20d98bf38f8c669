package multistore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxKeyLength is the maximum length of an instance key.
	MaxKeyLength = 128
	// MaxKeySegments is the maximum number of path segments.
	MaxKeySegments = 4
	// LocalKey is the single-tenant-per-install identity key.
	LocalKey = "local"
)

var (
	// ErrInvalidKey indicates an instance key failed validation.
	ErrInvalidKey = errors.New("invalid instance key")
	// ErrInstanceNotFound indicates the requested instance does not exist.
	ErrInstanceNotFound = errors.New("instance not found")
)

// keySegmentPattern matches a single valid segment.
// Segment must start and end with alphanumeric, can contain hyphens in middle.
var keySegmentPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateKey validates an instance key against format rules.
// Returns nil if valid, ErrInvalidKey with details if invalid.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidKey, MaxKeyLength)
	}

	segments := strings.Split(key, "/")
	if len(segments) > MaxKeySegments {
		return fmt.Errorf("%w: exceeds %d path segments", ErrInvalidKey, MaxKeySegments)
	}

	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at position %d", ErrInvalidKey, i)
		}
		if !keySegmentPattern.MatchString(seg) {
			return fmt.Errorf("%w: invalid segment %q (must be lowercase alphanumeric with hyphens)",
				ErrInvalidKey, seg)
		}
	}

	return nil
}

// IdentityKey returns the identity-store instance key for a user key.
func IdentityKey(userKey string) string { return userKey + "/identity" }

// LibraryKey returns the context-library instance key for a user key.
func LibraryKey(userKey string) string { return userKey + "/library" }
