package bus

import "time"

// State is the lifecycle state of the bus connection.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateLost
)

// String returns the machine-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status texts shown to dashboard users.
const (
	TextDisconnected = "Desconectado"
	TextConnecting   = "Conectando..."
	TextConnected    = "Conectado"
	TextLost         = "Conexão perdida"
	TextFailed       = "Falha na conexão"
)

// Status is a point-in-time view of the connection.
type Status struct {
	State State `json:"state"`
	// Text is the user-facing description. A Disconnected state reached
	// through a failed attempt reads TextFailed.
	Text      string    `json:"text"`
	ClientID  string    `json:"client_id,omitempty"`
	Broker    string    `json:"broker"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
}

// Connected reports whether the state is Connected.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

func statusText(state State, failed bool) string {
	switch state {
	case StateConnecting:
		return TextConnecting
	case StateConnected:
		return TextConnected
	case StateLost:
		return TextLost
	default:
		if failed {
			return TextFailed
		}
		return TextDisconnected
	}
}
