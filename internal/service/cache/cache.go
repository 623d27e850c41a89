package cache

import "time"

// BytesCache is a minimal cache API storing raw bytes with TTL.
// DeleteByPrefix drops every key starting with prefix, so callers can
// invalidate a commodity's cached windows after new rows land.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(prefix string) error
}
