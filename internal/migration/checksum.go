package migration

import (
	"crypto/sha256"
	"fmt"
)

// checksum returns the hex sha256 digest of raw script bytes. The digest is
// stored in the ledger at apply time and recomputed later for drift checks.
func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
