package database

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

func NewMemcached(server string) *memcache.Client {
	client := memcache.New(server)
	client.Timeout = 200 * time.Millisecond
	return client
}

// PingMemcached checks every configured memcached server. The client has no context support.
func PingMemcached(client *memcache.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping()
	}
}
