// Package idgen provides ID generation for formwatch. Entry IDs are
// deterministic (form identity + creation instant) so an entry can be
// traced back to the submission that produced it; everything else uses
// a pluggable Generator.
package idgen

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// EntryID derives a history-entry ID from the form identity and the
// creation instant, millisecond precision.
func EntryID(formID string, at time.Time) string {
	return formID + "-" + strconv.FormatInt(at.UnixMilli(), 10)
}

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable, used for detector session IDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}
