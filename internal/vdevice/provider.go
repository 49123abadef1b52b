package vdevice

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Provider is the media subsystem devices register with.
type Provider interface {
	Register(d Descriptor) error
	Unregister(deviceID uuid.UUID) error
}

// Registry is an in-process Provider. It enforces descriptor validity and
// unique device IDs the way a platform device registry would.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	devices map[uuid.UUID]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger.With("component", "device-registry"),
		devices: make(map[uuid.UUID]Descriptor),
	}
}

// Register implements Provider.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.DeviceID]; ok {
		return newError(CodeRegistrationFailed, "device %s already registered", d.DeviceID)
	}
	r.devices[d.DeviceID] = d
	r.logger.Info("Device registered", "device_id", d.DeviceID, "name", d.DisplayName)
	return nil
}

// Unregister implements Provider.
func (r *Registry) Unregister(deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[deviceID]; !ok {
		return newError(CodeRegistrationFailed, "device %s not registered", deviceID)
	}
	delete(r.devices, deviceID)
	r.logger.Info("Device unregistered", "device_id", deviceID)
	return nil
}

// Devices returns the registered descriptors.
func (r *Registry) Devices() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}
