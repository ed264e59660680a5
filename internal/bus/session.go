package bus

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/casa-core/internal/infrastructure/config"
	"github.com/nerrad567/casa-core/internal/infrastructure/mqtt"
)

// Session is one broker connection. *mqtt.Session satisfies it.
type Session interface {
	Connect(done func(error))
	Subscribe(topic string, done func(error))
	Publish(topic string, payload []byte, done func(error)) error
	Disconnect()
	ClientID() string
}

// Dialer creates an unconnected session wired to the given handlers.
type Dialer func(clientID string, h mqtt.Handlers) Session

// MQTTDialer returns a Dialer producing paho-backed sessions.
func MQTTDialer(cfg config.MQTTConfig, logger mqtt.Logger) Dialer {
	return func(clientID string, h mqtt.Handlers) Session {
		s := mqtt.NewSession(cfg, clientID, h)
		if logger != nil {
			s.SetLogger(logger)
		}
		return s
	}
}

// clientIDSuffixLen matches the 9 random characters the dashboard clients use.
const clientIDSuffixLen = 9

// newClientID returns "<prefix>_<9 random chars>".
func newClientID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:clientIDSuffixLen]
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}
