package device

import (
	"fmt"
	"sync"
	"time"
)

// Change describes what a write changed. It is delivered to the change
// observer after the write lock is released.
type Change struct {
	// Devices holds a copy of every device whose status or pending flag changed.
	Devices []Device
	// Sensors is non-nil when any sensor field changed.
	Sensors *SensorReading
}

// Empty reports whether nothing observable changed.
func (c Change) Empty() bool {
	return len(c.Devices) == 0 && c.Sensors == nil
}

// Stats summarises the store for health and status endpoints.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Active   int `json:"active"`
	ReadOnly int `json:"read_only"`
}

type entry struct {
	spec      Spec
	status    Status
	pending   bool
	updatedAt time.Time
}

func (e *entry) snapshot() Device {
	d := Device{
		Key:          e.spec.Key,
		Kind:         e.spec.Kind,
		Labels:       e.spec.Labels,
		Status:       e.status,
		Pending:      e.pending,
		CommandTopic: e.spec.CommandTopic,
	}
	if !e.updatedAt.IsZero() {
		t := e.updatedAt
		d.UpdatedAt = &t
	}
	return d
}

// Store is the single writer of device and sensor state.
//
// All writes, single-field setters included, go through one lock, so each
// inbound message, command or timer expiry is applied as one atomic step.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The change observer runs after the lock is released, on the writing goroutine.
type Store struct {
	mu      sync.RWMutex
	devices map[Key]*entry
	order   []Key
	sensors SensorReading

	now func() time.Time

	onChange func(Change)
	hookMu   sync.RWMutex
}

// NewStore creates a store holding every catalog device at its default
// status, not pending, with all sensor values unknown.
//
// The catalog is expected to be valid (see ValidateCatalog); later
// duplicates of a key are ignored.
func NewStore(catalog []Spec) *Store {
	s := &Store{
		devices: make(map[Key]*entry, len(catalog)),
		order:   make([]Key, 0, len(catalog)),
		now:     time.Now,
	}
	for _, spec := range catalog {
		if _, dup := s.devices[spec.Key]; dup {
			continue
		}
		s.devices[spec.Key] = &entry{spec: spec, status: spec.Default}
		s.order = append(s.order, spec.Key)
	}
	return s
}

// SetOnChange sets the callback invoked after every write that changed
// something observable.
func (s *Store) SetOnChange(callback func(Change)) {
	s.hookMu.Lock()
	s.onChange = callback
	s.hookMu.Unlock()
}

func (s *Store) notify(c Change) {
	if c.Empty() {
		return
	}
	s.hookMu.RLock()
	hook := s.onChange
	s.hookMu.RUnlock()
	if hook != nil {
		hook(c)
	}
}

// Get returns a copy of a device.
// Returns ErrDeviceNotFound if the key is not in the catalog.
func (s *Store) Get(key Key) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[key]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	return e.snapshot(), nil
}

// Spec returns the catalog entry of a device.
func (s *Store) Spec(key Key) (Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[key]
	if !ok {
		return Spec{}, false
	}
	return e.spec, true
}

// Devices returns a copy of every device in catalog order.
func (s *Store) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.devices[k].snapshot())
	}
	return out
}

// Sensors returns a copy of the sensor reading.
func (s *Store) Sensors() SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensorSnapshot()
}

func (s *Store) sensorSnapshot() SensorReading {
	r := s.sensors
	if r.LastUpdate != nil {
		t := *r.LastUpdate
		r.LastUpdate = &t
	}
	return r
}

// Stats returns device counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.order)}
	for _, e := range s.devices {
		if e.pending {
			st.Pending++
		}
		if e.status == e.spec.Labels.Active {
			st.Active++
		}
		if e.spec.ReadOnly() {
			st.ReadOnly++
		}
	}
	return st
}

// SetStatus records a confirmed status and clears pending.
// Any status string is accepted; the store never rejects a report for
// vocabulary reasons.
func (s *Store) SetStatus(key Key, status Status) error {
	return s.Apply(StatusMutation(key, status))
}

// SetPending sets or clears a device's pending flag. Setting the flag to
// its current value is a no-op and produces no change notification.
func (s *Store) SetPending(key Key, pending bool) error {
	s.mu.Lock()
	e, ok := s.devices[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	var c Change
	if e.pending != pending {
		e.pending = pending
		c.Devices = append(c.Devices, e.snapshot())
	}
	s.mu.Unlock()

	s.notify(c)
	return nil
}

// SetTemperature sets the temperature reading.
func (s *Store) SetTemperature(v Decimal) {
	_ = s.Apply(TemperatureMutation(v))
}

// SetHumidity sets the humidity reading.
func (s *Store) SetHumidity(v Decimal) {
	_ = s.Apply(HumidityMutation(v))
}

// SetMotion sets the motion flag.
func (s *Store) SetMotion(detected bool) {
	_ = s.Apply(MotionMutation(detected))
}

// SetLastUpdate sets the time of the last sensor reading.
func (s *Store) SetLastUpdate(t time.Time) {
	_ = s.Apply(LastUpdateMutation(t))
}

// Apply commits a batch of mutations atomically.
//
// The whole batch is validated first; if any mutation is invalid or names
// an unknown device, nothing is applied. A status mutation always clears
// the device's pending flag in the same step.
//
// Parameters:
//   - mutations: Changes to apply, in order
//
// Returns:
//   - error: ErrDeviceNotFound or ErrInvalidMutation, wrapped
func (s *Store) Apply(mutations ...Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	s.mu.Lock()
	for _, m := range mutations {
		if err := m.validate(); err != nil {
			s.mu.Unlock()
			return err
		}
		if m.Field == FieldStatus {
			if _, ok := s.devices[m.Entity]; !ok {
				s.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrDeviceNotFound, m.Entity)
			}
		}
	}

	now := s.now()
	changed := make(map[Key]struct{})
	var order []Key
	sensorsChanged := false

	for _, m := range mutations {
		switch m.Field {
		case FieldStatus:
			e := s.devices[m.Entity]
			status := m.Value.(Status)
			if e.status == status && !e.pending {
				continue
			}
			e.status = status
			e.pending = false
			e.updatedAt = now
			if _, seen := changed[m.Entity]; !seen {
				changed[m.Entity] = struct{}{}
				order = append(order, m.Entity)
			}
		case FieldTemperature:
			v := m.Value.(Decimal)
			if s.sensors.TemperatureC != v {
				s.sensors.TemperatureC = v
				sensorsChanged = true
			}
		case FieldHumidity:
			v := m.Value.(Decimal)
			if s.sensors.HumidityPct != v {
				s.sensors.HumidityPct = v
				sensorsChanged = true
			}
		case FieldMotion:
			v := m.Value.(bool)
			if s.sensors.MotionDetected != v {
				s.sensors.MotionDetected = v
				sensorsChanged = true
			}
		case FieldLastUpdate:
			t := m.Value.(time.Time)
			if s.sensors.LastUpdate == nil || !s.sensors.LastUpdate.Equal(t) {
				s.sensors.LastUpdate = &t
				sensorsChanged = true
			}
		}
	}

	var c Change
	for _, k := range order {
		c.Devices = append(c.Devices, s.devices[k].snapshot())
	}
	if sensorsChanged {
		r := s.sensorSnapshot()
		c.Sensors = &r
	}
	s.mu.Unlock()

	s.notify(c)
	return nil
}
