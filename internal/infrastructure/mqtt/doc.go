// Package mqtt provides the broker session used by casa-core.
//
// This package manages:
//   - One connection per Session, over tcp:// or ws:// (MQTT over WebSocket)
//   - Asynchronous connect, subscribe and publish with completion callbacks
//   - Connection-lost notification
//   - Panic recovery around message handlers
//
// A Session is deliberately single-use and never reconnects on its own.
// Connection lifecycle, the subscription set and what to do after a loss are
// decided by the caller (see internal/bus).
//
// # Delivery
//
// The house devices publish at QoS 0 and so does the session by default:
// messages are best-effort, with no acknowledgements or redelivery.
//
// # Usage
//
//	sess := mqtt.NewSession(cfg.MQTT, "dashboard_k3j9x0a1b", mqtt.Handlers{
//	    OnMessage: func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    },
//	    OnConnectionLost: func(err error) { log.Printf("lost: %v", err) },
//	})
//	sess.Connect(func(err error) {
//	    if err != nil {
//	        return
//	    }
//	    sess.Subscribe("casa/sala/dados", nil)
//	    _ = sess.Publish("casa/sala/luz", []byte("ON"), nil)
//	})
package mqtt
