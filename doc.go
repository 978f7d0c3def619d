// Package secplugin is a runtime for plugins that attach to a chat relay
// over a websocket and react to the messages it pushes.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          cmd/secplugin              │  Flags, config layers,
//	│   (handlers, signals, metrics)      │  built-in commands
//	└─────────────────────────────────────┘
//	           ↓ runs
//	┌─────────────────────────────────────┐
//	│            session                  │  Connect, authenticate,
//	│  (state machine, liveness, backoff) │  reconnect, route frames
//	└─────────────────────────────────────┘
//	     ↓ replies          ↓ pushes
//	┌──────────────┐  ┌───────────────────┐
//	│  correlator  │  │     dispatch      │  Regex patterns,
//	│ (seq → slot) │  │ (permits, pool)   │  bounded handlers
//	└──────────────┘  └───────────────────┘
//	           ↓ encodes                ↓ answers through
//	┌─────────────────────────────────────┐
//	│   frame (JSON/CBOR)   message       │  Wire envelope and
//	│                       sender        │  attribute lists
//	└─────────────────────────────────────┘
//
// A message is an ordered list of elements, each a small tag → value map.
// Content tags (Text, Img, Gif, Emoid) always open a new element; metadata
// tags merge into the first element that lacks them. Handlers receive the
// message and answer through a sender.Sender, which addresses the reply to
// the conversation the message came from.
//
// # Packages
//
//   - message: attribute-list messages, conversation kinds and reply addressing
//   - frame: wire envelope, commands, payloads and codecs
//   - correlator: sequence numbers and request/response matching
//   - session: relay connection lifecycle
//   - dispatch: pattern registry and bounded handler execution
//   - sender: outbound message and operation helpers
//   - config: layered configuration with environment overrides
//   - metric, health: Prometheus metrics and health reporting
//   - errors: classified errors
//   - pkg/retry, pkg/worker: backoff and worker pool utilities
//   - testutil: in-process relay and request mocks for tests
//
// # Usage
//
//	registry := dispatch.NewRegistry()
//	dispatcher := dispatch.New(registry, dispatch.Config{MaxConcurrent: 4})
//
//	sess, err := session.New(session.DefaultConfig(), dispatcher)
//	if err != nil {
//	    return err
//	}
//	snd := sender.New(sess)
//
//	registry.HandleMatch(`echo (.*)`, func(ctx context.Context, msg *message.Message, m dispatch.Match) error {
//	    _, err := snd.Reply(ctx, msg, m.Group(1))
//	    return err
//	})
//
//	return sess.Run(ctx)
package secplugin
