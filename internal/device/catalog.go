package device

import "fmt"

// Device keys of the reference installation.
var (
	PortaoSocial      = Key{Room: RoomGaragem, Device: "portaoSocial"}
	PortaoBasculante  = Key{Room: RoomGaragem, Device: "portaoBasculante"}
	LuzGaragem        = Key{Room: RoomGaragem, Device: "luzGaragem"}
	LuzSala           = Key{Room: RoomSala, Device: "luzSala"}
	ArCondicionado    = Key{Room: RoomSala, Device: "arCondicionado"}
	Umidificador      = Key{Room: RoomSala, Device: "umidificador"}
	LuzQuarto         = Key{Room: RoomQuarto, Device: "luzQuarto"}
	TomadaInteligente = Key{Room: RoomQuarto, Device: "tomadaInteligente"}
	Cortina           = Key{Room: RoomQuarto, Device: "cortina"}
)

// SensorEntity is the mutation target for sensor readings.
var SensorEntity = Key{Room: RoomSala, Device: "sensor"}

var (
	lightLabels   = Labels{Active: StatusLigada, Inactive: StatusDesligada}
	climateLabels = Labels{Active: StatusLigado, Inactive: StatusDesligado}
	gateLabels    = Labels{Active: StatusAberto, Inactive: StatusFechado}
	curtainLabels = Labels{Active: StatusAberta, Inactive: StatusFechada}
)

// Spec is the static description of one device.
type Spec struct {
	Key    Key
	Kind   Kind
	Labels Labels
	// Default is the status the device starts in.
	Default Status
	// CommandTopic is empty for devices driven only by their own firmware.
	CommandTopic string
}

// ReadOnly reports whether the device accepts no user commands.
func (s Spec) ReadOnly() bool {
	return s.CommandTopic == ""
}

// Catalog returns the fixed device set of the installation, in display order.
//
// The air conditioner and the humidifier are automatic: their firmware turns
// them on and off from the sensor readings, so they have no command topic.
func Catalog() []Spec {
	return []Spec{
		{Key: PortaoSocial, Kind: KindDoor, Labels: gateLabels, Default: StatusFechado, CommandTopic: "casa/garagem/social"},
		{Key: PortaoBasculante, Kind: KindDoor, Labels: gateLabels, Default: StatusFechado, CommandTopic: "casa/garagem/basculante"},
		{Key: LuzGaragem, Kind: KindToggle, Labels: lightLabels, Default: StatusDesligada, CommandTopic: "casa/garagem/luz"},
		{Key: LuzSala, Kind: KindToggle, Labels: lightLabels, Default: StatusDesligada, CommandTopic: "casa/sala/luz"},
		{Key: ArCondicionado, Kind: KindToggle, Labels: climateLabels, Default: StatusDesligado},
		{Key: Umidificador, Kind: KindToggle, Labels: climateLabels, Default: StatusDesligado},
		{Key: LuzQuarto, Kind: KindToggle, Labels: lightLabels, Default: StatusDesligada, CommandTopic: "casa/quarto/luz"},
		{Key: TomadaInteligente, Kind: KindToggle, Labels: lightLabels, Default: StatusDesligada, CommandTopic: "casa/quarto/tomada"},
		{Key: Cortina, Kind: KindCurtain, Labels: curtainLabels, Default: StatusFechada, CommandTopic: "casa/quarto/cortina"},
	}
}

// ValidateCatalog checks that every entry is complete and keys are unique.
func ValidateCatalog(specs []Spec) error {
	seen := make(map[Key]struct{}, len(specs))
	for _, s := range specs {
		if s.Key.Room == "" || s.Key.Device == "" {
			return fmt.Errorf("%w: entry with empty key", ErrInvalidCatalog)
		}
		if s.Key == SensorEntity {
			return fmt.Errorf("%w: %s is reserved for sensor readings", ErrInvalidCatalog, s.Key)
		}
		if _, dup := seen[s.Key]; dup {
			return fmt.Errorf("%w: duplicate key %s", ErrInvalidCatalog, s.Key)
		}
		seen[s.Key] = struct{}{}
		if !s.Kind.Valid() {
			return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidCatalog, s.Key, s.Kind)
		}
		if s.Labels.Active == "" || s.Labels.Inactive == "" {
			return fmt.Errorf("%w: %s is missing status labels", ErrInvalidCatalog, s.Key)
		}
		if s.Default == "" {
			return fmt.Errorf("%w: %s has no default status", ErrInvalidCatalog, s.Key)
		}
	}
	return nil
}
