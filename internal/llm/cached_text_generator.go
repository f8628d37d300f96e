package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CacheStats counts cache lookups.
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Size   int `json:"size"`
}

// CachedTextGenerator wraps a TextGenerator and remembers responses by the
// md5 of their prompt. Cached responses report zero token usage.
type CachedTextGenerator struct {
	realGen       TextGenerator
	cache         map[string]string
	cacheFilePath string
	hits, misses  int
	mu            sync.Mutex
}

// NewCachedTextGenerator creates a new CachedTextGenerator. When
// cacheFilePath is set the cache is loaded from it and SaveCache writes it back.
func NewCachedTextGenerator(realGen TextGenerator, cacheFilePath string) (*CachedTextGenerator, error) {
	c := &CachedTextGenerator{
		realGen:       realGen,
		cache:         make(map[string]string),
		cacheFilePath: cacheFilePath,
	}
	if cacheFilePath == "" {
		return c, nil
	}

	cacheDir := filepath.Dir(cacheFilePath)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}

	data, err := os.ReadFile(cacheFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", cacheFilePath, err)
	}
	if err := json.Unmarshal(data, &c.cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data from %s: %w", cacheFilePath, err)
	}

	slog.Info("llm: loaded response cache", "entries", len(c.cache), "path", cacheFilePath)
	return c, nil
}

func promptKey(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// GenerateContent answers from the cache or calls the wrapped generator.
// The lock is not held during the call, so concurrent misses for the same
// prompt may both reach the model.
func (c *CachedTextGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	key := promptKey(prompt)

	c.mu.Lock()
	if content, ok := c.cache[key]; ok {
		c.hits++
		c.mu.Unlock()
		return ContentResponse{Content: content}, nil
	}
	c.misses++
	c.mu.Unlock()

	resp, err := c.realGen.GenerateContent(ctx, prompt)
	if err != nil {
		return ContentResponse{}, err
	}

	c.mu.Lock()
	c.cache[key] = resp.Content
	c.mu.Unlock()
	return resp, nil
}

// Stats returns the current hit and miss counts.
func (c *CachedTextGenerator) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.cache)}
}

// SaveCache persists the current in-memory cache to the file system.
func (c *CachedTextGenerator) SaveCache() error {
	if c.cacheFilePath == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(c.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := os.WriteFile(c.cacheFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", c.cacheFilePath, err)
	}
	return nil
}
