// Package engine assembles the casa-core components behind one facade.
//
// The Engine owns the traffic log, the device store, the topic router, the
// bus connection manager and the command dispatcher, and exposes the
// operations a presentation layer needs: connect, disconnect, issue a
// command, and read point-in-time snapshots. Change notifications are fanned
// out to any number of Hooks (the WebSocket hub, the traffic archive, the
// telemetry recorder).
package engine
