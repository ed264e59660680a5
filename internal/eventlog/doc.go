// Package eventlog holds the bounded traffic log shown to dashboard users.
//
// Every connection transition, subscription, outbound command and inbound
// message produces exactly one Entry. The Store keeps the newest Capacity
// entries in a ring buffer; appending past capacity silently evicts the
// oldest entry. Snapshots are newest-first copies and never block producers
// for longer than the copy itself.
//
// Usage:
//
//	logs := eventlog.NewStore()
//	logs.Append("connected to MQTT broker", eventlog.CategorySuccess)
//	for _, e := range logs.Snapshot() {
//	    fmt.Println(e.Timestamp, e.Category, e.Message)
//	}
package eventlog
