package models

// Well-known metadata keys.
const (
	MetadataLastUpdate  = "lastUpdate"
	MetadataTotalVideos = "totalVideos"
)

// Lock is a lease on a named update lock.
type Lock struct {
	Key   string `db:"key"`
	Owner string `db:"owner"`
	// ExpiresAt is an epoch second after which any caller may reclaim the lock.
	ExpiresAt int64 `db:"expires_at"`
}
