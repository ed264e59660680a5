// Package device holds the authoritative in-memory state of every device
// and of the living-room sensor node.
//
// The device set is fixed at start-up from the Catalog: each entry has an
// identity (room + device key), a Kind that determines its command
// vocabulary, the pair of status labels its firmware reports, a default
// status and, for user-controllable devices, the topic its commands are
// published on. Devices are never created or destroyed at runtime.
//
// # Key Types
//
//   - Key: room + device identity, e.g. {garagem, portaoSocial}
//   - Kind: Toggle (ON/OFF), Door (abrir/fechar), Curtain (ABRIR/FECHAR)
//   - Device: status plus the pending flag of an unconfirmed command
//   - SensorReading: temperature, humidity, motion and last update time
//   - Mutation: one typed field change produced by the topic router
//
// # Pending commands
//
// A device is pending between an optimistic command and its reconciliation.
// Pending is cleared either by a status mutation (the device confirmed) or by
// the command timeout, whichever comes first. Clearing an already-cleared
// flag is a no-op, so the later of the two never produces a second change.
//
// # Thread Safety
//
// Store serialises every write behind a single lock. Apply commits a batch
// of mutations as one atomic step: readers never observe half of an inbound
// message. Reads return copies.
//
// # Usage
//
//	store := device.NewStore(device.Catalog())
//	_ = store.Apply(device.StatusMutation(device.LuzSala, device.StatusLigada))
//	d, _ := store.Get(device.LuzSala)
//	fmt.Println(d.DisplayStatus()) // "Ligada"
package device
