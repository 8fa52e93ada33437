package couchview

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// makeRevID returns "<gen>-<digest>", where the digest covers the parent
// revision, the deletion flag and the canonical body.
func makeRevID(gen int, parent string, deleted bool, canonicalBody []byte) string {
	buf := make([]byte, 0, len(parent)+2+len(canonicalBody))
	buf = append(buf, parent...)
	buf = append(buf, 0)
	if deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, canonicalBody...)
	sum := xxh3.Hash128(buf)
	return fmt.Sprintf("%d-%016x%016x", gen, sum.Hi, sum.Lo)
}

// revGeneration parses the generation prefix of a revision id.
func revGeneration(revID string) (int, error) {
	prefix, _, ok := strings.Cut(revID, "-")
	if !ok {
		return 0, fmt.Errorf("invalid revision id %q", revID)
	}
	gen, err := strconv.Atoi(prefix)
	if err != nil || gen <= 0 {
		return 0, fmt.Errorf("invalid revision id %q", revID)
	}
	return gen, nil
}
