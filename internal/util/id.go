// Package util resolves short identifiers typed on the command line.
package util

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultShortIDLength is the number of characters shown for entry ids.
	DefaultShortIDLength = 8
	// MaxAmbiguousCandidates is the number of candidates listed in an ambiguity error.
	MaxAmbiguousCandidates = 5
)

// Errors returned by ID resolution.
var (
	ErrAmbiguousID = errors.New("ambiguous ID prefix")
	ErrNotFound    = errors.New("not found")
)

// ShortID shortens an id for display. n <= 0 uses DefaultShortIDLength.
func ShortID(id string, n int) string {
	if n <= 0 {
		n = DefaultShortIDLength
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// EntryIDResolver finds timeline entry ids of a project by prefix.
type EntryIDResolver interface {
	FindEntryIDsByPrefix(ctx context.Context, projectID, prefix string, limit int) ([]string, error)
}

// ResolveEntryID expands an entry id or unique prefix to the full id.
func ResolveEntryID(ctx context.Context, resolver EntryIDResolver, projectID, idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("entry ID: %w", ErrNotFound)
	}
	// One extra candidate tells us the list was cut.
	candidates, err := resolver.FindEntryIDsByPrefix(ctx, projectID, idOrPrefix, MaxAmbiguousCandidates+1)
	if err != nil {
		return "", fmt.Errorf("find entry IDs: %w", err)
	}
	for _, c := range candidates {
		if c == idOrPrefix {
			return c, nil
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("entry with prefix %q: %w", idOrPrefix, ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		shown := candidates
		more := ""
		if len(shown) > MaxAmbiguousCandidates {
			shown = shown[:MaxAmbiguousCandidates]
			more = " and more"
		}
		return "", fmt.Errorf("%w: prefix %q matches %v%s", ErrAmbiguousID, idOrPrefix, shown, more)
	}
}
