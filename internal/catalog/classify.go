package catalog

import "prism/internal/store"

// Change labels the outcome of comparing a freshly extracted function
// against its stored artifact.
type Change string

const (
	ChangeNew       Change = "NEW"
	ChangeChanged   Change = "CHANGED"
	ChangeUnchanged Change = "UNCHANGED"
	ChangeDeleted   Change = "DELETED"
)

// Classify compares the stored artifact (nil when never seen) with the
// fingerprint of the newly extracted body. Classification is purely
// fingerprint-based: signature-only or whitespace-only edits that leave the
// normalized body intact are UNCHANGED.
func Classify(stored *store.Artifact, fingerprint string) Change {
	switch {
	case stored == nil:
		return ChangeNew
	case stored.Fingerprint != fingerprint:
		return ChangeChanged
	default:
		return ChangeUnchanged
	}
}
