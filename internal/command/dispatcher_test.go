package command

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/eventlog"
)

// fakePublisher records publishes and lets tests complete them.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	err       error
	sent      []string
	done      []func(error)
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) Publish(topic string, payload []byte, done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, topic+"="+string(payload))
	p.done = append(p.done, done)
	return nil
}

// fakeTimer is fired by hand.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) fire() {
	if t.stopped || t.fired {
		return
	}
	t.fired = true
	t.f()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

type fixture struct {
	d       *Dispatcher
	pub     *fakePublisher
	clock   *fakeClock
	devices *device.Store
	logs    *eventlog.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pub:     &fakePublisher{connected: true},
		clock:   &fakeClock{},
		devices: device.NewStore(device.Catalog()),
		logs:    eventlog.NewStore(),
	}
	f.d = NewDispatcher(f.pub, f.devices, f.logs, 0)
	f.d.afterFunc = f.clock.afterFunc
	return f
}

func (f *fixture) pending(t *testing.T, key device.Key) bool {
	t.Helper()
	d, err := f.devices.Get(key)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	return d.Pending
}

func TestNewDispatcher_DefaultTimeout(t *testing.T) {
	f := newFixture(t)
	if f.d.Timeout() != 2*time.Second {
		t.Errorf("Timeout() = %v, want 2s", f.d.Timeout())
	}
}

func TestIssueCommand_Success(t *testing.T) {
	f := newFixture(t)

	if err := f.d.IssueCommand(device.LuzSala, "ON"); err != nil {
		t.Fatalf("IssueCommand() error = %v", err)
	}

	if !f.pending(t, device.LuzSala) {
		t.Error("device not pending after command")
	}
	if len(f.pub.sent) != 1 || f.pub.sent[0] != "casa/sala/luz=ON" {
		t.Errorf("published = %v, want casa/sala/luz=ON", f.pub.sent)
	}

	snap := f.logs.Snapshot()
	if len(snap) != 1 || snap[0].Category != eventlog.CategorySent || snap[0].Message != "sent [casa/sala/luz]: ON" {
		t.Errorf("log = %+v, want one sent entry", snap)
	}

	if len(f.clock.timers) != 1 || f.clock.last().d != DefaultTimeout {
		t.Errorf("timers = %+v, want one 2s timer", f.clock.timers)
	}
	if f.d.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", f.d.InFlight())
	}
}

func TestIssueCommand_TokensPerKind(t *testing.T) {
	tests := []struct {
		key   device.Key
		token string
		topic string
	}{
		{device.PortaoSocial, "abrir", "casa/garagem/social"},
		{device.PortaoBasculante, "fechar", "casa/garagem/basculante"},
		{device.LuzGaragem, "OFF", "casa/garagem/luz"},
		{device.LuzQuarto, "ON", "casa/quarto/luz"},
		{device.TomadaInteligente, "OFF", "casa/quarto/tomada"},
		{device.Cortina, "ABRIR", "casa/quarto/cortina"},
	}

	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			f := newFixture(t)
			if err := f.d.IssueCommand(tt.key, tt.token); err != nil {
				t.Fatalf("IssueCommand() error = %v", err)
			}
			if want := tt.topic + "=" + tt.token; f.pub.sent[0] != want {
				t.Errorf("published %q, want %q", f.pub.sent[0], want)
			}
		})
	}
}

func TestIssueCommand_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		key       device.Key
		token     string
		wantErr   error
	}{
		{name: "not connected", connected: false, key: device.LuzSala, token: "ON", wantErr: bus.ErrNotConnected},
		{name: "unknown device", connected: true, key: device.Key{Room: device.RoomSala, Device: "tv"}, token: "ON", wantErr: ErrUnknownDevice},
		{name: "read-only air conditioner", connected: true, key: device.ArCondicionado, token: "ON", wantErr: ErrReadOnlyDevice},
		{name: "read-only humidifier", connected: true, key: device.Umidificador, token: "OFF", wantErr: ErrReadOnlyDevice},
		{name: "wrong case for door", connected: true, key: device.PortaoSocial, token: "ABRIR", wantErr: ErrInvalidCommand},
		{name: "wrong case for curtain", connected: true, key: device.Cortina, token: "abrir", wantErr: ErrInvalidCommand},
		{name: "lowercase toggle", connected: true, key: device.LuzSala, token: "on", wantErr: ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.pub.connected = tt.connected

			err := f.d.IssueCommand(tt.key, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("IssueCommand() error = %v, want %v", err, tt.wantErr)
			}

			if len(f.pub.sent) != 0 {
				t.Errorf("published %v on rejection", f.pub.sent)
			}
			for _, d := range f.devices.Devices() {
				if d.Pending {
					t.Errorf("%s pending after rejection", d.Key)
				}
			}
			snap := f.logs.Snapshot()
			if len(snap) != 1 || snap[0].Category != eventlog.CategoryError {
				t.Errorf("log = %+v, want exactly one error entry", snap)
			}
			if len(f.clock.timers) != 0 {
				t.Error("timer armed on rejection")
			}
		})
	}
}

func TestIssueCommand_NotConnectedMessage(t *testing.T) {
	f := newFixture(t)
	f.pub.connected = false

	_ = f.d.IssueCommand(device.LuzSala, "ON")

	if got := f.logs.Snapshot()[0].Message; got != "MQTT not connected" {
		t.Errorf("message = %q", got)
	}
}

func TestIssueCommand_SyncPublishFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("socket closed")

	err := f.d.IssueCommand(device.LuzSala, "ON")
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("IssueCommand() error = %v, want ErrPublishFailed", err)
	}
	if f.pending(t, device.LuzSala) {
		t.Error("pending not rolled back after publish failure")
	}

	snap := f.logs.Snapshot()
	if len(snap) != 1 || snap[0].Category != eventlog.CategoryError {
		t.Errorf("log = %+v, want one error entry and no sent entry", snap)
	}
	if f.d.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", f.d.InFlight())
	}
}

func TestIssueCommand_AsyncPublishFailureRollsBack(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	timer := f.clock.last()

	f.pub.done[0](errors.New("write: broken pipe"))

	if f.pending(t, device.LuzSala) {
		t.Error("pending not rolled back after async failure")
	}
	if !timer.stopped {
		t.Error("timer still armed after async failure")
	}
	snap := f.logs.Snapshot()
	if snap[0].Category != eventlog.CategoryError {
		t.Errorf("newest entry = %+v, want error", snap[0])
	}
}

func TestIssueCommand_TimeoutClearsPendingKeepsStatus(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzQuarto, "ON")
	f.clock.last().fire()

	d, _ := f.devices.Get(device.LuzQuarto)
	if d.Pending {
		t.Error("pending after timeout")
	}
	if d.Status != device.StatusDesligada {
		t.Errorf("Status = %q, want unchanged desligada", d.Status)
	}
	if f.d.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", f.d.InFlight())
	}
}

func TestIssueCommand_ConfirmationBeforeTimeout(t *testing.T) {
	f := newFixture(t)

	var changes int
	f.devices.SetOnChange(func(device.Change) { changes++ })

	_ = f.d.IssueCommand(device.PortaoSocial, "abrir")
	_ = f.devices.SetStatus(device.PortaoSocial, device.StatusAberto)
	afterConfirm := changes

	f.clock.last().fire()

	d, _ := f.devices.Get(device.PortaoSocial)
	if d.Pending || d.Status != device.StatusAberto {
		t.Errorf("device = %+v, want aberto and not pending", d)
	}
	if changes != afterConfirm {
		t.Error("timeout after confirmation produced a change")
	}
}

func TestIssueCommand_TimerFiresAfterDisconnect(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.Cortina, "FECHAR")
	f.pub.connected = false
	f.clock.last().fire()

	if f.pending(t, device.Cortina) {
		t.Error("pending not cleared by timer after disconnect")
	}
}

func TestIssueCommand_ReissueRearmsTimer(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	first := f.clock.last()
	_ = f.d.IssueCommand(device.LuzSala, "OFF")
	second := f.clock.last()

	if !first.stopped {
		t.Error("first timer not stopped on re-issue")
	}

	// A stale timer firing must not clear the newer command.
	first.f()
	if !f.pending(t, device.LuzSala) {
		t.Error("stale timer cleared the newer command")
	}

	second.fire()
	if f.pending(t, device.LuzSala) {
		t.Error("pending after the newest timer fired")
	}
}

// raisingDevices runs onRaise after every SetPending(true).
type raisingDevices struct {
	*device.Store
	onRaise func()
}

func (r *raisingDevices) SetPending(key device.Key, pending bool) error {
	err := r.Store.SetPending(key, pending)
	if pending && r.onRaise != nil {
		r.onRaise()
	}
	return err
}

func TestIssueCommand_StaleTimerDuringReissueKeepsPending(t *testing.T) {
	f := newFixture(t)
	devices := &raisingDevices{Store: f.devices}
	f.d.devices = devices

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	first := f.clock.last()

	expired := make(chan struct{})
	devices.onRaise = func() {
		devices.onRaise = nil
		go func() {
			first.f()
			close(expired)
		}()
		// Leave the old window room to fire before the re-issue completes.
		time.Sleep(20 * time.Millisecond)
	}

	if err := f.d.IssueCommand(device.LuzSala, "OFF"); err != nil {
		t.Fatalf("IssueCommand() error = %v", err)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("old window never finished")
	}

	if !f.pending(t, device.LuzSala) {
		t.Error("old window cleared the re-issued command")
	}
	if f.d.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", f.d.InFlight())
	}
}

// earlyFailPublisher reports the publish failure before Publish returns.
type earlyFailPublisher struct {
	err error
}

func (p *earlyFailPublisher) IsConnected() bool { return true }

func (p *earlyFailPublisher) Publish(_ string, _ []byte, done func(error)) error {
	done(p.err)
	return nil
}

func TestIssueCommand_CompletionFailsBeforeReturn(t *testing.T) {
	f := newFixture(t)
	f.d.pub = &earlyFailPublisher{err: errors.New("write: broken pipe")}

	err := f.d.IssueCommand(device.LuzSala, "ON")
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("IssueCommand() error = %v, want ErrPublishFailed", err)
	}
	if f.pending(t, device.LuzSala) {
		t.Error("pending not rolled back")
	}

	snap := f.logs.Snapshot()
	if len(snap) != 1 || snap[0].Category != eventlog.CategoryError {
		t.Errorf("log = %+v, want a single error entry", snap)
	}
	if len(f.clock.timers) != 0 {
		t.Errorf("%d timers armed, want none", len(f.clock.timers))
	}
	if f.d.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", f.d.InFlight())
	}
}

func TestIssueCommand_StalePublishFailureIgnored(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	_ = f.d.IssueCommand(device.LuzSala, "OFF")
	before := f.logs.Len()

	f.pub.done[0](errors.New("late failure"))

	if !f.pending(t, device.LuzSala) {
		t.Error("failure of a superseded command rolled back the newer one")
	}
	if f.logs.Len() != before {
		t.Error("failure of a superseded command was logged")
	}
}

func TestIssueCommand_IndependentDevices(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	_ = f.d.IssueCommand(device.LuzQuarto, "ON")

	f.clock.timers[0].fire()

	if f.pending(t, device.LuzSala) {
		t.Error("luzSala still pending after its timer")
	}
	if !f.pending(t, device.LuzQuarto) {
		t.Error("luzQuarto cleared by another device's timer")
	}
}

func TestClose_StopsTimers(t *testing.T) {
	f := newFixture(t)

	_ = f.d.IssueCommand(device.LuzSala, "ON")
	_ = f.d.IssueCommand(device.LuzQuarto, "ON")

	f.d.Close()

	for i, tm := range f.clock.timers {
		if !tm.stopped {
			t.Errorf("timer %d not stopped", i)
		}
	}
	if f.d.InFlight() != 0 {
		t.Errorf("InFlight() = %d after Close", f.d.InFlight())
	}
}

func TestDispatcher_RealTimer(t *testing.T) {
	pub := &fakePublisher{connected: true}
	devices := device.NewStore(device.Catalog())
	d := NewDispatcher(pub, devices, eventlog.NewStore(), 20*time.Millisecond)
	defer d.Close()

	if err := d.IssueCommand(device.LuzGaragem, "ON"); err != nil {
		t.Fatalf("IssueCommand() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dev, _ := devices.Get(device.LuzGaragem)
		if !dev.Pending {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pending never cleared by the real timer")
}
