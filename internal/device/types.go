package device

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Room identifies a room of the house.
type Room string

// Rooms of the reference installation.
const (
	RoomGaragem Room = "garagem"
	RoomSala    Room = "sala"
	RoomQuarto  Room = "quarto"
)

// Key uniquely identifies a device.
type Key struct {
	Room   Room   `json:"room"`
	Device string `json:"device"`
}

// String returns "room/device".
func (k Key) String() string {
	return string(k.Room) + "/" + k.Device
}

// ParseKey parses the "room/device" form produced by Key.String.
func ParseKey(s string) (Key, bool) {
	room, dev, ok := strings.Cut(s, "/")
	if !ok || room == "" || dev == "" {
		return Key{}, false
	}
	return Key{Room: Room(room), Device: dev}, true
}

// Kind determines the command vocabulary of a device.
type Kind string

// Device kinds.
const (
	KindToggle  Kind = "toggle"
	KindDoor    Kind = "door"
	KindCurtain Kind = "curtain"
)

// Command tokens. Case is part of the wire contract.
const (
	CommandOn           = "ON"
	CommandOff          = "OFF"
	CommandDoorOpen     = "abrir"
	CommandDoorClose    = "fechar"
	CommandCurtainOpen  = "ABRIR"
	CommandCurtainClose = "FECHAR"
)

// Commands returns the tokens accepted by devices of this kind.
// The first token activates (on/open), the second deactivates.
func (k Kind) Commands() []string {
	switch k {
	case KindToggle:
		return []string{CommandOn, CommandOff}
	case KindDoor:
		return []string{CommandDoorOpen, CommandDoorClose}
	case KindCurtain:
		return []string{CommandCurtainOpen, CommandCurtainClose}
	default:
		return nil
	}
}

// AcceptsCommand reports whether token belongs to the kind's vocabulary.
// Comparison is case-sensitive.
func (k Kind) AcceptsCommand(token string) bool {
	for _, c := range k.Commands() {
		if c == token {
			return true
		}
	}
	return false
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.Commands() != nil
}

// Status is the last known state label of a device, in the vocabulary its
// firmware reports.
type Status string

// Status labels.
const (
	StatusLigada    Status = "ligada"
	StatusDesligada Status = "desligada"
	StatusLigado    Status = "ligado"
	StatusDesligado Status = "desligado"
	StatusAberto    Status = "aberto"
	StatusFechado   Status = "fechado"
	StatusAberta    Status = "aberta"
	StatusFechada   Status = "fechada"
)

// PendingText is shown instead of the status while a command is unconfirmed.
const PendingText = "Processando..."

// Labels is the pair of statuses a device alternates between.
type Labels struct {
	Active   Status `json:"active"`
	Inactive Status `json:"inactive"`
}

// Device is a point-in-time copy of one device's state.
type Device struct {
	Key          Key        `json:"key"`
	Kind         Kind       `json:"kind"`
	Labels       Labels     `json:"labels"`
	Status       Status     `json:"status"`
	Pending      bool       `json:"pending"`
	CommandTopic string     `json:"command_topic,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ReadOnly reports whether the device accepts no user commands.
func (d Device) ReadOnly() bool {
	return d.CommandTopic == ""
}

// Active reports whether the status is the device's active label.
func (d Device) Active() bool {
	return d.Status == d.Labels.Active
}

// DisplayStatus returns the human-readable status: PendingText while a
// command is unconfirmed, otherwise the status with its first letter
// capitalised.
func (d Device) DisplayStatus() string {
	if d.Pending {
		return PendingText
	}
	return capitalise(string(d.Status))
}

func capitalise(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Decimal is a sensor value kept in the textual form the sensor reported,
// so "24.50" is displayed as "24.50". The zero value means unknown.
type Decimal string

// Unknown is the Decimal of a value that has never been reported.
const Unknown Decimal = ""

// UnknownText is how an unknown Decimal is displayed.
const UnknownText = "--"

// ParseDecimal validates s as a decimal number and returns it unchanged.
func ParseDecimal(s string) (Decimal, error) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return Unknown, err
	}
	return Decimal(s), nil
}

// Known reports whether a value has been reported.
func (d Decimal) Known() bool {
	return d != Unknown
}

// Float returns the numeric value. ok is false when unknown.
func (d Decimal) Float() (v float64, ok bool) {
	if !d.Known() {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(d), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String returns the reported text, or UnknownText.
func (d Decimal) String() string {
	if !d.Known() {
		return UnknownText
	}
	return string(d)
}

// MarshalJSON encodes an unknown value as null and a known one as a string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// SensorReading is the latest state of the living-room sensor node.
// Fields are updated independently.
type SensorReading struct {
	TemperatureC   Decimal    `json:"temperature_c"`
	HumidityPct    Decimal    `json:"humidity_pct"`
	MotionDetected bool       `json:"motion_detected"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
}
