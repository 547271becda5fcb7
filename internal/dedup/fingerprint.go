package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/nextrole/conveyor/internal/model"
)

// Fingerprint derives the content hash used for exact duplicate detection.
// It covers the fields a reposted listing keeps stable across sources: the
// folded title, company, location and the bounded summary. The hash is
// computed once when a row is first catalogued and never recomputed on
// merges, so later sightings keep matching the row they were folded into.
func Fingerprint(job model.CanonicalJob) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		job.NormalizedTitle,
		job.CompanyKey(),
		job.Location.Key(),
		job.Summary,
	}, "|")))
	return hex.EncodeToString(sum[:])
}
