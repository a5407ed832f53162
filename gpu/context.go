package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Context holds the single WebGPU context for the application
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	once     sync.Once
	initErr  error
}

var (
	ctx         Context
	adapterPref string
)

// SetAdapterPreference selects the first adapter whose name or vendor
// contains substr (case-insensitive). It only has an effect before the
// context is first initialized.
func SetAdapterPreference(substr string) {
	adapterPref = strings.ToLower(strings.TrimSpace(substr))
}

// GetContext returns the singleton GPU context, initializing it if necessary
func GetContext() (*Context, error) {
	ctx.once.Do(func() {
		ctx.initErr = ctx.init()
	})

	if ctx.initErr != nil {
		return nil, ctx.initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}

func (c *Context) init() error {
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	if adapterPref != "" {
		for _, a := range c.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			Log("Adapter: %s (Vendor: %s, Type: %d)", info.Name, info.VendorName, info.AdapterType)
			if strings.Contains(strings.ToLower(info.Name), adapterPref) ||
				strings.Contains(strings.ToLower(info.VendorName), adapterPref) {
				Log("--> Selecting adapter %s for preference %q", info.Name, adapterPref)
				c.Adapter = a
				break
			}
		}
	}

	// High performance first, then low power, then whatever the driver offers.
	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err != nil {
			Log("adapter request failed: %v", err)
		}
	}
	if c.Adapter == nil {
		return fmt.Errorf("all adapter attempts failed: %v", err)
	}

	info := c.Adapter.GetInfo()
	Log("Using GPU Adapter: %s (Vendor: %s)", info.Name, info.VendorName)

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	c.Queue = c.Device.GetQueue()
	return nil
}
