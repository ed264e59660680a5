package router

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nerrad567/casa-core/internal/device"
)

var (
	tempPattern     = regexp.MustCompile(`Temp: ([\d.]+)C`)
	humidityPattern = regexp.MustCompile(`Umid: ([\d.]+)%`)
)

// ParseSensorData parses "Temp: <t>C, Umid: <h>%".
//
// Both values must be present and numeric; they are kept in the textual form
// the sensor sent. A successful parse also stamps the last update time.
func ParseSensorData(payload []byte, now time.Time) ([]device.Mutation, error) {
	s := string(payload)

	tm := tempPattern.FindStringSubmatch(s)
	hm := humidityPattern.FindStringSubmatch(s)
	if tm == nil || hm == nil {
		return nil, fmt.Errorf("%w: expected \"Temp: <t>C, Umid: <h>%%\", got %q", ErrMalformedPayload, s)
	}

	temp, err := device.ParseDecimal(tm[1])
	if err != nil {
		return nil, fmt.Errorf("%w: temperature %q: %v", ErrMalformedPayload, tm[1], err)
	}
	hum, err := device.ParseDecimal(hm[1])
	if err != nil {
		return nil, fmt.Errorf("%w: humidity %q: %v", ErrMalformedPayload, hm[1], err)
	}

	return []device.Mutation{
		device.TemperatureMutation(temp),
		device.HumidityMutation(hum),
		device.LastUpdateMutation(now),
	}, nil
}

// OnOffParser returns a parser for an automatic appliance that reports "ON"
// when running. Any other payload means off.
func OnOffParser(key device.Key, labels device.Labels) ParseFunc {
	return func(payload []byte, _ time.Time) ([]device.Mutation, error) {
		status := labels.Inactive
		if string(payload) == device.CommandOn {
			status = labels.Active
		}
		return []device.Mutation{device.StatusMutation(key, status)}, nil
	}
}

// garageEvents maps each garage status token to its mutations.
var garageEvents = map[string][]device.Mutation{
	"social_aberto":      {device.StatusMutation(device.PortaoSocial, device.StatusAberto)},
	"social_fechado":     {device.StatusMutation(device.PortaoSocial, device.StatusFechado)},
	"basculante_aberto":  {device.StatusMutation(device.PortaoBasculante, device.StatusAberto)},
	"basculante_fechado": {device.StatusMutation(device.PortaoBasculante, device.StatusFechado)},
	"movimento_detectado": {
		device.MotionMutation(true),
		device.StatusMutation(device.LuzGaragem, device.StatusLigada),
	},
	"luz_desligada": {
		device.MotionMutation(false),
		device.StatusMutation(device.LuzGaragem, device.StatusDesligada),
	},
}

// ParseGarageStatus parses a garage controller event token.
// Unknown tokens are malformed.
func ParseGarageStatus(payload []byte, _ time.Time) ([]device.Mutation, error) {
	muts, ok := garageEvents[string(payload)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown garage event %q", ErrMalformedPayload, string(payload))
	}
	out := make([]device.Mutation, len(muts))
	copy(out, muts)
	return out, nil
}
