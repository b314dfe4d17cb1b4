package ports

import "time"

// Cache is a key value store where every entry carries its own validity
// deadline. Reads may return stale data only up to validUntil.
type Cache interface {
	Get(key string) (value interface{}, validUntil time.Time, ok bool)
	Set(key string, value interface{}, validUntil time.Time)
	Delete(key string)
}
