package device

import (
	"fmt"
	"time"
)

// Field names the piece of state a Mutation changes.
type Field string

// Mutation fields.
const (
	FieldStatus      Field = "status"
	FieldTemperature Field = "temperature_c"
	FieldHumidity    Field = "humidity_pct"
	FieldMotion      Field = "motion"
	FieldLastUpdate  Field = "last_update"
)

// Mutation is a single typed state change.
//
// Status mutations target a catalog device and carry a Status. Sensor
// mutations target SensorEntity and carry a Decimal (temperature, humidity),
// a bool (motion) or a time.Time (last update).
type Mutation struct {
	Entity Key
	Field  Field
	Value  any
}

// StatusMutation sets a device status. Applying it also clears pending.
func StatusMutation(key Key, status Status) Mutation {
	return Mutation{Entity: key, Field: FieldStatus, Value: status}
}

// TemperatureMutation sets the sensor temperature.
func TemperatureMutation(v Decimal) Mutation {
	return Mutation{Entity: SensorEntity, Field: FieldTemperature, Value: v}
}

// HumidityMutation sets the sensor humidity.
func HumidityMutation(v Decimal) Mutation {
	return Mutation{Entity: SensorEntity, Field: FieldHumidity, Value: v}
}

// MotionMutation sets the motion flag.
func MotionMutation(detected bool) Mutation {
	return Mutation{Entity: SensorEntity, Field: FieldMotion, Value: detected}
}

// LastUpdateMutation sets the time of the last sensor reading.
func LastUpdateMutation(t time.Time) Mutation {
	return Mutation{Entity: SensorEntity, Field: FieldLastUpdate, Value: t}
}

// String is used in log lines.
func (m Mutation) String() string {
	return fmt.Sprintf("%s.%s=%v", m.Entity, m.Field, m.Value)
}

// validate checks the field/value pairing. Catalog membership of status
// targets is checked by the Store.
func (m Mutation) validate() error {
	var ok bool
	switch m.Field {
	case FieldStatus:
		_, ok = m.Value.(Status)
		if ok && m.Entity == SensorEntity {
			return fmt.Errorf("%w: status on sensor entity", ErrInvalidMutation)
		}
	case FieldTemperature, FieldHumidity:
		_, ok = m.Value.(Decimal)
	case FieldMotion:
		_, ok = m.Value.(bool)
	case FieldLastUpdate:
		_, ok = m.Value.(time.Time)
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidMutation, m.Field)
	}
	if !ok {
		return fmt.Errorf("%w: %s expects a different value type, got %T", ErrInvalidMutation, m.Field, m.Value)
	}
	if m.Field != FieldStatus && m.Entity != SensorEntity {
		return fmt.Errorf("%w: sensor field %s on %s", ErrInvalidMutation, m.Field, m.Entity)
	}
	return nil
}
