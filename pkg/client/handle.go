package client

import (
	"context"
	"strings"

	"github.com/example/ext4nfs/pkg/nfs"
)

// maxSymlinkHops bounds symlink indirection during path walks,
// matching the usual ELOOP limit order of magnitude.
const maxSymlinkHops = 8

// LookupPath resolves a slash-separated path to a file handle,
// starting from the export root. Symbolic links along the way are
// followed, bounded by maxSymlinkHops. Resolved handles are cached per
// absolute path.
func (c *Client) LookupPath(ctx context.Context, path string) ([]byte, *nfs.Fattr3, error) {
	if path == "" {
		return nil, nil, ErrInvalidPath
	}

	if handle, ok := c.handleCache.get(path); ok {
		// Verify before trusting: the server may have restarted since
		// the entry was cached
		if attr, err := c.GetAttr(ctx, handle); err == nil {
			return handle, attr, nil
		}
		c.handleCache.invalidate(path)
	}

	root, err := c.GetRootFileHandle(ctx)
	if err != nil {
		return nil, nil, err
	}

	handle, attr, err := c.walk(ctx, root, splitPath(path), 0)
	if err != nil {
		return nil, nil, err
	}
	c.handleCache.put(path, handle)
	return handle, attr, nil
}

// walk resolves the remaining path components from the current handle.
// hops counts symlink traversals across the whole resolution.
func (c *Client) walk(ctx context.Context, current []byte, components []string, hops int) ([]byte, *nfs.Fattr3, error) {
	attr, err := c.GetAttr(ctx, current)
	if err != nil {
		return nil, nil, err
	}

	for i, name := range components {
		child, childAttr, err := c.Lookup(ctx, current, name)
		if err != nil {
			return nil, nil, err
		}

		if childAttr != nil && childAttr.Type == nfs.TypeLnk {
			if hops >= maxSymlinkHops {
				return nil, nil, ErrTooManyLinks
			}
			target, err := c.Readlink(ctx, child)
			if err != nil {
				return nil, nil, err
			}

			rest := components[i+1:]
			targetComponents := append(splitPath(target), rest...)
			if strings.HasPrefix(target, "/") {
				root, err := c.GetRootFileHandle(ctx)
				if err != nil {
					return nil, nil, err
				}
				return c.walk(ctx, root, targetComponents, hops+1)
			}
			return c.walk(ctx, current, targetComponents, hops+1)
		}

		current = child
		attr = childAttr
	}

	if attr == nil {
		attr, err = c.GetAttr(ctx, current)
		if err != nil {
			return nil, nil, err
		}
	}
	return current, attr, nil
}

// splitPath breaks a path into its non-empty components. "." segments
// vanish here; ".." is left for the server, which serves the real
// on-disk entry.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}
