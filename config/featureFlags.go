package config

// StrictDocumentImmutability makes confirmed documents read-only: instead of an edit with delta
// movements and a reposted transaction, they must be cancelled and recreated.
//
// Set via env:
// - STRICT_DOCUMENT_IMMUTABLE=true
func StrictDocumentImmutability() bool {
	return envBool("STRICT_DOCUMENT_IMMUTABLE")
}
