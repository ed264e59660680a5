package device

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// changeRecorder collects change notifications.
type changeRecorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *changeRecorder) record(c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func newTestStore(t *testing.T) (*Store, *changeRecorder) {
	t.Helper()
	s := NewStore(Catalog())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	rec := &changeRecorder{}
	s.SetOnChange(rec.record)
	return s, rec
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(Catalog())

	devices := s.Devices()
	if len(devices) != len(Catalog()) {
		t.Fatalf("Devices() len = %d, want %d", len(devices), len(Catalog()))
	}

	for i, spec := range Catalog() {
		d := devices[i]
		if d.Key != spec.Key {
			t.Errorf("Devices()[%d].Key = %v, want %v (catalog order)", i, d.Key, spec.Key)
		}
		if d.Status != spec.Default {
			t.Errorf("%s status = %q, want default %q", d.Key, d.Status, spec.Default)
		}
		if d.Pending {
			t.Errorf("%s pending at start", d.Key)
		}
	}

	sensors := s.Sensors()
	if sensors.TemperatureC.Known() || sensors.HumidityPct.Known() {
		t.Errorf("sensor values known at start: %+v", sensors)
	}
	if sensors.MotionDetected {
		t.Error("motion detected at start")
	}
	if sensors.LastUpdate != nil {
		t.Error("last update set at start")
	}
}

func TestStore_GetUnknownDevice(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(Key{Room: RoomSala, Device: "tv"})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStore_SetStatusClearsPending(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SetPending(LuzSala, true); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if err := s.SetStatus(LuzSala, StatusLigada); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	d, _ := s.Get(LuzSala)
	if d.Status != StatusLigada {
		t.Errorf("Status = %q, want %q", d.Status, StatusLigada)
	}
	if d.Pending {
		t.Error("Pending = true after confirmation, want false")
	}
	if d.UpdatedAt == nil {
		t.Error("UpdatedAt not set after confirmation")
	}
}

func TestStore_SetStatusAcceptsAnyLabel(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SetStatus(LuzQuarto, Status("piscando")); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	d, _ := s.Get(LuzQuarto)
	if d.Status != "piscando" {
		t.Errorf("Status = %q, want piscando", d.Status)
	}
}

func TestStore_PendingClearedOnce(t *testing.T) {
	tests := []struct {
		name   string
		first  func(s *Store)
		second func(s *Store)
	}{
		{
			name:   "confirmation then timeout",
			first:  func(s *Store) { _ = s.SetStatus(LuzSala, StatusLigada) },
			second: func(s *Store) { _ = s.SetPending(LuzSala, false) },
		},
		{
			name:   "timeout then late confirmation of unchanged status",
			first:  func(s *Store) { _ = s.SetPending(LuzSala, false) },
			second: func(s *Store) { _ = s.SetStatus(LuzSala, StatusDesligada) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec := newTestStore(t)
			_ = s.SetPending(LuzSala, true)
			before := rec.count()

			tt.first(s)
			if got := rec.count() - before; got != 1 {
				t.Fatalf("first clearer produced %d changes, want 1", got)
			}

			tt.second(s)
			if got := rec.count() - before; got != 1 {
				t.Errorf("second clearer produced a change, total %d", got)
			}

			d, _ := s.Get(LuzSala)
			if d.Pending {
				t.Error("Pending = true after both clearers")
			}
		})
	}
}

func TestStore_SetPendingNoopProducesNoChange(t *testing.T) {
	s, rec := newTestStore(t)

	if err := s.SetPending(Cortina, false); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("no-op SetPending notified %d times", rec.count())
	}
}

func TestStore_SetPendingUnknownDevice(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.SetPending(Key{Room: RoomQuarto, Device: "abajur"}, true)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetPending() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStore_ApplyIsAtomic(t *testing.T) {
	s, rec := newTestStore(t)

	err := s.Apply(
		StatusMutation(LuzGaragem, StatusLigada),
		StatusMutation(Key{Room: RoomGaragem, Device: "portaoLateral"}, StatusAberto),
	)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("Apply() error = %v, want ErrDeviceNotFound", err)
	}

	d, _ := s.Get(LuzGaragem)
	if d.Status != StatusDesligada {
		t.Errorf("partial batch applied: luzGaragem = %q", d.Status)
	}
	if rec.count() != 0 {
		t.Errorf("failed batch notified %d times", rec.count())
	}
}

func TestStore_ApplyBatchSingleNotification(t *testing.T) {
	s, rec := newTestStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

	err := s.Apply(
		TemperatureMutation("24.5"),
		HumidityMutation("61"),
		LastUpdateMutation(ts),
		MotionMutation(true),
		StatusMutation(LuzGaragem, StatusLigada),
	)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("notifications = %d, want 1", rec.count())
	}

	c := rec.changes[0]
	if len(c.Devices) != 1 || c.Devices[0].Key != LuzGaragem {
		t.Errorf("changed devices = %+v, want only luzGaragem", c.Devices)
	}
	if c.Sensors == nil {
		t.Fatal("Sensors change missing")
	}
	if c.Sensors.TemperatureC != "24.5" || c.Sensors.HumidityPct != "61" {
		t.Errorf("sensor change = %+v", *c.Sensors)
	}
	if !c.Sensors.MotionDetected {
		t.Error("motion not reported in change")
	}
	if c.Sensors.LastUpdate == nil || !c.Sensors.LastUpdate.Equal(ts) {
		t.Errorf("LastUpdate = %v, want %v", c.Sensors.LastUpdate, ts)
	}
}

func TestStore_ApplyIdempotent(t *testing.T) {
	s, rec := newTestStore(t)

	_ = s.Apply(StatusMutation(PortaoSocial, StatusAberto))
	_ = s.Apply(StatusMutation(PortaoSocial, StatusAberto))

	if rec.count() != 1 {
		t.Errorf("notifications = %d, want 1 for a repeated status", rec.count())
	}

	s.SetTemperature("22.0")
	s.SetTemperature("22.0")
	if rec.count() != 2 {
		t.Errorf("notifications = %d, want 2 after repeated temperature", rec.count())
	}
}

func TestStore_ApplyRepeatedConfirmationLeavesDeviceUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	if err := s.Apply(StatusMutation(ArCondicionado, StatusLigado)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	once, _ := s.Get(ArCondicionado)

	if err := s.Apply(StatusMutation(ArCondicionado, StatusLigado)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	twice, _ := s.Get(ArCondicionado)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("device after second confirmation = %+v, want %+v", twice, once)
	}
}

func TestStore_ApplyRejectsInvalidMutations(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
	}{
		{name: "unknown field", m: Mutation{Entity: LuzSala, Field: "brightness", Value: 10}},
		{name: "status as plain string", m: Mutation{Entity: LuzSala, Field: FieldStatus, Value: "ligada"}},
		{name: "temperature as float", m: Mutation{Entity: SensorEntity, Field: FieldTemperature, Value: 21.5}},
		{name: "motion as string", m: Mutation{Entity: SensorEntity, Field: FieldMotion, Value: "true"}},
		{name: "sensor field on device", m: Mutation{Entity: LuzSala, Field: FieldHumidity, Value: Decimal("50")}},
		{name: "status on sensor", m: Mutation{Entity: SensorEntity, Field: FieldStatus, Value: StatusLigado}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			if err := s.Apply(tt.m); !errors.Is(err, ErrInvalidMutation) {
				t.Errorf("Apply(%v) error = %v, want ErrInvalidMutation", tt.m, err)
			}
		})
	}
}

func TestStore_SensorSettersPartialUpdate(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetHumidity("40.2")
	got := s.Sensors()
	if got.HumidityPct != "40.2" {
		t.Errorf("HumidityPct = %q, want 40.2", got.HumidityPct)
	}
	if got.TemperatureC.Known() {
		t.Error("TemperatureC became known from a humidity update")
	}

	s.SetMotion(true)
	s.SetLastUpdate(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	got = s.Sensors()
	if !got.MotionDetected || got.LastUpdate == nil {
		t.Errorf("Sensors() = %+v", got)
	}
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLastUpdate(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	r := s.Sensors()
	*r.LastUpdate = time.Time{}

	if s.Sensors().LastUpdate.IsZero() {
		t.Error("mutating a sensor snapshot changed the store")
	}
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.SetStatus(LuzSala, StatusLigada)
	_ = s.SetPending(Cortina, true)

	st := s.Stats()
	if st.Total != 9 {
		t.Errorf("Total = %d, want 9", st.Total)
	}
	if st.Active != 1 {
		t.Errorf("Active = %d, want 1", st.Active)
	}
	if st.Pending != 1 {
		t.Errorf("Pending = %d, want 1", st.Pending)
	}
	if st.ReadOnly != 2 {
		t.Errorf("ReadOnly = %d, want 2", st.ReadOnly)
	}
}

func TestStore_ConcurrentWritesAndReads(t *testing.T) {
	s := NewStore(Catalog())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.SetPending(LuzSala, j%2 == 0)
				_ = s.Apply(TemperatureMutation("20"), MotionMutation(i%2 == 0))
				_ = s.Devices()
				_ = s.Sensors()
			}
		}(i)
	}
	wg.Wait()
}
