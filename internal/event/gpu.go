package event

import (
	"context"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/sirupsen/logrus"
)

// gpuSampleInterval is how often the sampler re-inventories host GPUs.
const gpuSampleInterval = 5 * time.Second

// GPUSnapshot is the payload emitted on TopicGPU.
type GPUSnapshot struct {
	Cards []GPUCard `json:"cards"`
}

// GPUCard is one GPU as reported by the host's PCI inventory.
type GPUCard struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
}

// GPUCache holds the most recent GPUSnapshot for callers (the /gpu read
// endpoint) that want the current inventory without subscribing to the
// event stream.
type GPUCache struct {
	mu   sync.RWMutex
	last GPUSnapshot
}

// NewGPUCache returns an empty cache; Get returns a zero-value snapshot
// until the sampler has populated it at least once.
func NewGPUCache() *GPUCache { return &GPUCache{} }

// Get returns the last snapshot recorded by RunGPUSampler.
func (c *GPUCache) Get() GPUSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *GPUCache) set(snap GPUSnapshot) {
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
}

// RunGPUSampler polls the host's GPU inventory on a fixed interval, emits a
// GPUSnapshot on TopicGPU, and records it into cache, until ctx is
// cancelled. A probe failure (no PCI access, sandboxed environment) is
// logged once per occurrence and treated as "no cards this tick" rather
// than fatal — GPU visibility is a nice-to-have for operators, not
// something the coordinator depends on.
func RunGPUSampler(ctx context.Context, bus *Bus, cache *GPUCache, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ticker := time.NewTicker(gpuSampleInterval)
	defer ticker.Stop()

	sample := func() {
		snap := sampleGPUs(log)
		if cache != nil {
			cache.set(snap)
		}
		bus.Emit(TopicGPU, snap)
	}
	sample()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func sampleGPUs(log *logrus.Logger) GPUSnapshot {
	info, err := ghw.GPU()
	if err != nil {
		log.WithError(err).Debug("gpu inventory probe failed")
		return GPUSnapshot{}
	}

	cards := make([]GPUCard, 0, len(info.GraphicsCards))
	for i, card := range info.GraphicsCards {
		c := GPUCard{Index: i, Address: card.Address}
		if card.DeviceInfo != nil {
			if card.DeviceInfo.Vendor != nil {
				c.Vendor = card.DeviceInfo.Vendor.Name
			}
			if card.DeviceInfo.Product != nil {
				c.Product = card.DeviceInfo.Product.Name
			}
		}
		cards = append(cards, c)
	}
	return GPUSnapshot{Cards: cards}
}
