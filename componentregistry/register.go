// Package componentregistry registers the built-in micropipe components.
package componentregistry

import (
	"errors"

	"github.com/c360/micropipe/component"
	pkgerrors "github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/input/generator"
	natsinput "github.com/c360/micropipe/input/nats"
	"github.com/c360/micropipe/input/udp"
	"github.com/c360/micropipe/output/counter"
	"github.com/c360/micropipe/output/file"
	"github.com/c360/micropipe/output/httppost"
	natsoutput "github.com/c360/micropipe/output/nats"
	"github.com/c360/micropipe/output/websocket"
	"github.com/c360/micropipe/processor/batcher"
	jsonfilter "github.com/c360/micropipe/processor/json_filter"
)

type registration struct {
	what     string
	register func(*component.Registry, component.Dependencies) error
}

var builtins = []registration{
	// Sources
	{"generator source", generator.Register},
	{"NATS source", natsinput.Register},
	{"UDP source", udp.Register},

	// Operators
	{"JSON filter operator", jsonfilter.Register},
	{"batcher operator", batcher.Register},

	// Emitters
	{"counter emitter", counter.Register},
	{"file emitter", file.Register},
	{"NATS emitter", natsoutput.Register},
	{"HTTP POST emitter", httppost.Register},
	{"WebSocket emitter", websocket.Register},
}

// Register adds every built-in component to registry:
//
//   - generator, nats-source, udp (sources)
//   - json-filter (direct response operator)
//   - batcher (delayed response operator)
//   - counter, file, nats-emitter, http-post, websocket (emitters)
//
// deps is handed to each built-in. The NATS components fall back to
// deps.NATSClient when no url is configured, and metrics are registered in
// deps.MetricsRegistry when it is set.
func Register(registry *component.Registry, deps component.Dependencies) error {
	// nil registry is a programming error
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	for _, b := range builtins {
		if err := b.register(registry, deps); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", b.what+" registration")
		}
	}
	return nil
}
