package dedup

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID produces a region key unique with overwhelming
// probability: millisecond timestamp plus a random UUID suffix. Region ids
// double as store keys, so a collision would overwrite unrelated coverage;
// CacheResult guards against that explicitly.
func GenerateRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), uuid.NewString())
}
