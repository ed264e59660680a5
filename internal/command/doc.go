// Package command issues user commands to devices optimistically.
//
// Issuing a command marks the device pending, publishes the command token on
// the device's command topic and arms a one-shot reconciliation timer. The
// pending flag is then cleared by whichever happens first:
//
//   - the device confirms: an inbound status mutation clears pending
//   - the timer fires: pending is cleared and the status is left as it was
//
// A command is never retried. If the publish fails, pending is rolled back
// at once. Re-issuing a command for a device that is still pending re-arms
// its timer, so the newest command gets the full window.
//
// Timers are independent of the connection: if the session drops while a
// command is pending, the timer still clears the flag.
package command
