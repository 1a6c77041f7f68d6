// Package workspace provides shared utilities for project-tree file operations.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"
)

// CopyPool limits concurrent file copy operations using a weighted semaphore.
// Isolation copies for contested files all go through a shared CopyPool to
// prevent I/O exhaustion when several conflicts isolate at once.
type CopyPool struct {
	sem *semaphore.Weighted
}

// NewCopyPool creates a CopyPool that allows at most limit concurrent copies.
func NewCopyPool(limit int) *CopyPool {
	if limit < 1 {
		limit = 1
	}
	return &CopyPool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context is
// cancelled while waiting. A nil pool executes fn directly.
func (p *CopyPool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// CopyFile copies src to dst through the pool, creating parent directories
// as needed. A missing src produces an empty dst so the agent can still
// write its private version.
func (p *CopyPool) CopyFile(ctx context.Context, src, dst string) error {
	return p.Run(ctx, func() error {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", dst, err)
		}

		in, err := os.Open(src)
		if err != nil {
			if os.IsNotExist(err) {
				out, createErr := os.Create(dst)
				if createErr != nil {
					return fmt.Errorf("create %s: %w", dst, createErr)
				}
				return out.Close()
			}
			return fmt.Errorf("open %s: %w", src, err)
		}
		defer func() { _ = in.Close() }()

		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return fmt.Errorf("copy %s: %w", dst, err)
		}
		return out.Close()
	})
}
