// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"path/filepath"
)

// DirChecker verifies a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(ctx context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "not a directory", Message: c.path}
	}
	probe := filepath.Join(c.path, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "directory not writable"}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: "directory writable"}
}

// DeviceChecker reports the device session state. Running is healthy; any
// connecting or recovering state is degraded; a failed session is unhealthy.
type DeviceChecker struct {
	state func() (state string, lastErr error)
}

// NewDeviceChecker takes a snapshot function, typically the supervisor's
// State and LastError pair.
func NewDeviceChecker(state func() (string, error)) *DeviceChecker {
	return &DeviceChecker{state: state}
}

func (c *DeviceChecker) Name() string { return "device" }

func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	state, lastErr := c.state()
	result := CheckResult{Message: state}
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	switch state {
	case "running":
		result.Status = StatusHealthy
	case "failed":
		result.Status = StatusUnhealthy
	default:
		result.Status = StatusDegraded
	}
	return result
}

// StoreChecker verifies the session store answers queries.
type StoreChecker struct {
	ping func(ctx context.Context) error
}

func NewStoreChecker(ping func(ctx context.Context) error) *StoreChecker {
	return &StoreChecker{ping: ping}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "store reachable"}
}

// FileChecker verifies a file exists and is non-empty, used for the NN blob.
type FileChecker struct {
	name string
	path string
}

func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(ctx context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}
