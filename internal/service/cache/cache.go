package cache

import "time"

// BytesCache stores opaque byte payloads with a TTL. Both the API
// response cache and the portfolio snapshot job speak this interface.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
