package models

import "time"

// CacheStats reports the state of the response cache at a point in time.
type CacheStats struct {
	Total    int           `json:"total"`
	Active   int           `json:"active"`
	Expired  int           `json:"expired"`
	ByteSize int64         `json:"byte_size"`
	Duration time.Duration `json:"duration"`
	Location string        `json:"location"`
}
