package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// StaticRegistry is a device registry over a fixed set of configured sensors.
// Devices start connected; SetConnected toggles them.
type StaticRegistry struct {
	mu      sync.RWMutex
	devices map[string]types.Device
	now     func() time.Time
}

// NewStaticRegistry creates a registry with the given devices, all connected
func NewStaticRegistry(devices ...types.Device) *StaticRegistry {
	r := &StaticRegistry{
		devices: make(map[string]types.Device, len(devices)),
		now:     time.Now,
	}
	for _, d := range devices {
		d.Connected = true
		if d.BatteryLevel == 0 {
			d.BatteryLevel = 1
		}
		r.devices[d.ID] = d
	}
	return r
}

// SetConnected marks a device connected or disconnected
func (r *StaticRegistry) SetConnected(id string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("device %s not found", id)
	}
	d.Connected = connected
	if connected {
		d.LastSeen = r.now()
	}
	r.devices[id] = d
	return nil
}

// ConnectedDevices implements DeviceRegistry
func (r *StaticRegistry) ConnectedDevices(ctx context.Context) ([]types.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var out []types.Device
	for id, d := range r.devices {
		if !d.Connected {
			continue
		}
		d.LastSeen = now
		r.devices[id] = d
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// All returns every configured device, connected or not
func (r *StaticRegistry) All() []types.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
