// Package client implements an NFSv3 client over ONC RPC on TCP: call
// framing and xid matching, typed wrappers for the read-only procedure
// set, path resolution with bounded symlink following, and a
// path-to-handle cache.
package client

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/example/ext4nfs/pkg/nfs"
)

// Config contains the NFS client configuration options
type Config struct {
	// ServerAddress is the address of the NFS server (e.g., "localhost:11111")
	ServerAddress string

	// Timeout is the default timeout for RPC operations
	Timeout time.Duration

	// MaxRetries is the maximum number of retries for operations
	MaxRetries int

	// RetryDelay is the initial delay between retries (will be multiplied by backoff factor)
	RetryDelay time.Duration

	// BackoffFactor is the multiplier for retry delay after each attempt
	BackoffFactor float64

	// MaxCacheSize is the maximum number of entries in the file handle cache
	MaxCacheSize int

	// CacheTTL is the time-to-live for cache entries
	CacheTTL time.Duration

	// UID and GID identify the caller in AUTH_SYS credentials
	UID uint32
	GID uint32
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: "localhost:11111",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxCacheSize:  1000,
		CacheTTL:      5 * time.Minute,
		UID:           uint32(os.Getuid()),
		GID:           uint32(os.Getgid()),
	}
}

// Client represents an NFS client and implements the NFSClient interface
type Client struct {
	// Client configuration
	config *Config

	// AUTH_SYS credential sent with every call
	cred nfs.OpaqueAuth

	// Path-to-handle cache
	handleCache *handleCache

	mu sync.Mutex
	t  *transport

	// Root handle cached from the first MNT call
	root []byte
}

// NewClient creates a new NFS client. The connection is established
// lazily on the first call, so a server that is still starting does not
// fail construction.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	hostname, _ := os.Hostname()
	credBody := nfs.EncodeAuthSys(&nfs.AuthSysCred{
		Stamp:   uint32(time.Now().Unix()),
		Machine: hostname,
		UID:     config.UID,
		GID:     config.GID,
		Groups:  []uint32{config.GID},
	})

	return &Client{
		config:      config,
		cred:        nfs.OpaqueAuth{Flavor: nfs.AuthSys, Body: credBody},
		handleCache: newHandleCache(config.MaxCacheSize, config.CacheTTL),
	}, nil
}

// transportLocked returns the live transport, dialing when necessary.
func (c *Client) transportLocked() (*transport, error) {
	if c.t != nil {
		c.t.mu.Lock()
		dead := c.t.err != nil
		c.t.mu.Unlock()
		if !dead {
			return c.t, nil
		}
		c.t = nil
	}

	t, err := dialTransport(c.config.ServerAddress, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	c.t = t
	return t, nil
}

// call runs one RPC call against the current connection.
func (c *Client) call(ctx context.Context, program, version, procedure uint32,
	args func(*nfs.Encoder)) (*nfs.Decoder, error) {

	c.mu.Lock()
	t, err := c.transportLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t.call(ctx, program, version, procedure, c.cred, args)
}

// dropTransport discards a connection believed dead; the next call
// reconnects.
func (c *Client) dropTransport() {
	c.mu.Lock()
	if c.t != nil {
		c.t.close()
		c.t = nil
	}
	c.mu.Unlock()
}

// ClearCache drops every cached path-to-handle mapping.
func (c *Client) ClearCache() error {
	c.handleCache.clear()
	return nil
}

// SetCacheTTL sets the time-to-live for cache entries
func (c *Client) SetCacheTTL(duration time.Duration) {
	c.handleCache.setTTL(duration)
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t != nil {
		err := c.t.close()
		c.t = nil
		return err
	}
	return nil
}
