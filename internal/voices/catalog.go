// Package voices holds the process-wide voice catalog and the scoring used to
// pick a voice for a character.
package voices

import (
	"context"
	"log"
	"maps"
	"sync/atomic"
	"time"

	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
)

// Catalog caches the provider's voice list. Readers get an immutable snapshot;
// a refresh builds a new slice and swaps the pointer, never mutating a
// snapshot that a request may still be reading.
type Catalog struct {
	source  services.VoiceCatalogService
	timeout time.Duration
	voices  atomic.Pointer[[]models.VoiceDescriptor]
}

// NewCatalog creates an empty catalog backed by source. timeout bounds each fetch.
func NewCatalog(source services.VoiceCatalogService, timeout time.Duration) *Catalog {
	c := &Catalog{source: source, timeout: timeout}
	empty := []models.VoiceDescriptor{}
	c.voices.Store(&empty)
	return c
}

// NewStaticCatalog creates a catalog holding a fixed voice list.
func NewStaticCatalog(voices []models.VoiceDescriptor) *Catalog {
	c := &Catalog{}
	c.store(voices)
	return c
}

// Voices returns the current snapshot. Callers must not modify it.
func (c *Catalog) Voices() []models.VoiceDescriptor {
	return *c.voices.Load()
}

// Len returns the number of voices in the current snapshot.
func (c *Catalog) Len() int {
	return len(c.Voices())
}

// Load fetches the catalog once. A failed fetch is logged and leaves the
// catalog empty; it is up to the caller to decide whether that is fatal.
func (c *Catalog) Load(ctx context.Context) int {
	voices, err := c.fetch(ctx)
	if err != nil {
		log.Printf("[Catalog] Failed to get voices: %v", err)
		return c.Len()
	}
	c.store(voices)
	log.Printf("[Catalog] Loaded %d voices", len(voices))
	return len(voices)
}

// Refresh fetches the catalog and swaps it in. The previous snapshot is kept
// when the fetch fails or returns no voices.
func (c *Catalog) Refresh(ctx context.Context) error {
	voices, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		log.Printf("[Catalog] Refresh returned no voices, keeping %d cached", c.Len())
		return nil
	}
	c.store(voices)
	return nil
}

// Run refreshes the catalog every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("[Catalog] Refresh failed, keeping %d cached voices: %v", c.Len(), err)
				continue
			}
			log.Printf("[Catalog] Refreshed (%d voices)", c.Len())
		}
	}
}

func (c *Catalog) fetch(ctx context.Context) ([]models.VoiceDescriptor, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.source.ListVoices(ctx)
}

func (c *Catalog) store(voices []models.VoiceDescriptor) {
	snapshot := make([]models.VoiceDescriptor, len(voices))
	for i, v := range voices {
		v.Tags = maps.Clone(v.Tags)
		snapshot[i] = v
	}
	c.voices.Store(&snapshot)
}
