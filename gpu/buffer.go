package gpu

import (
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// ReadTimeout bounds how long a readback waits for its staging map.
var ReadTimeout = 2 * time.Second

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// newStorage uploads contents into a fresh storage buffer.
func (c *Context) newStorage(label string, contents []byte) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: contents,
		Usage:    storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	return buf, nil
}

// readFloats copies n float32 values out of src through a mappable
// staging buffer. It polls without blocking so a lost map surfaces as a
// timeout instead of a hang.
func (c *Context) readFloats(src *wgpu.Buffer, n int) ([]float32, error) {
	size := uint64(n) * 4
	staging, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging: %w", err)
	}
	defer staging.Destroy()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("readback encoder: %w", err)
	}
	enc.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("readback finish: %w", err)
	}
	c.Queue.Submit(cmd)

	mapped := make(chan wgpu.BufferMapAsyncStatus, 1)
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		mapped <- s
	}); err != nil {
		return nil, fmt.Errorf("map staging: %w", err)
	}

	deadline := time.Now().Add(ReadTimeout)
	var status wgpu.BufferMapAsyncStatus
	for waiting := true; waiting; {
		c.Device.Poll(false, nil)
		select {
		case status = <-mapped:
			waiting = false
		default:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("readback timed out after %v", ReadTimeout)
			}
			time.Sleep(time.Millisecond)
		}
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map staging: status %v", status)
	}
	defer staging.Unmap()

	raw := staging.GetMappedRange(0, uint(size))
	if raw == nil {
		return nil, fmt.Errorf("staging range not mapped")
	}
	return append([]float32(nil), wgpu.FromBytes[float32](raw)...), nil
}
