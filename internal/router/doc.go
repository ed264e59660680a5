// Package router turns inbound bus messages into typed device mutations.
//
// Routing is table-driven: a Binding pairs an exact topic with the parser for
// its payload grammar, and the binding table is the only place topic names
// and payload formats live. Adding a device means adding a row.
//
// Routing rules:
//   - A topic with no binding yields no mutations and no error.
//   - A payload the parser cannot read yields no mutations and an error
//     wrapping ErrMalformedPayload. A panicking parser is reported the same way.
//   - A successful parse yields the full set of mutations for the message,
//     which the caller applies as one atomic batch.
//
// Payload grammars of the reference installation:
//
//	casa/sala/dados         "Temp: 25.5C, Umid: 60%"
//	casa/sala/ar            "ON" = ligado, anything else = desligado
//	casa/sala/umidificador  "ON" = ligado, anything else = desligado
//	casa/garagem/status     social_aberto | social_fechado | basculante_aberto |
//	                        basculante_fechado | movimento_detectado | luz_desligada
//
// The bedroom topics (casa/quarto/*) are subscribed so their traffic shows up
// in the log, but the bedroom firmware publishes no confirmations on them, so
// they are deliberately left unbound.
package router
