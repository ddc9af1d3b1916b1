// Package config provides the pipeline and node configuration of micropipe.
//
// # Pipelines
//
// A pipeline document lists queues and the components wired between them.
// JSON and YAML are accepted; the format of a file follows its extension.
//
//	pipelineId: sensors
//	queues:
//	  - id: raw
//	  - id: filtered
//	    settings:
//	      capacity: 1024
//	      overflowPolicy: drop-oldest
//	components:
//	  - id: gen
//	    type: SOURCE
//	    name: generator
//	    version: 1.0.0
//	    settings: {count: 100, rate: 50}
//	    toQueues: [raw]
//	  - id: filter
//	    type: DIRECT_RESPONSE_OPERATOR
//	    name: json-filter
//	    version: 1.0.0
//	    settings: {field: kind, pattern: "temp.*"}
//	    fromQueues: [raw]
//	    toQueues: [filtered]
//
// Settings values may be written as any scalar; they reach components as strings.
//
// LoadPipeline reads one file and LoadPipelineDir every pipeline file in a
// directory. Structural validation (references, identifier uniqueness,
// component direction rules) is done by the pipeline package at
// instantiation time.
//
// # Node
//
// NodeConfig holds process-wide settings. Loader layers defaults, files and
// environment variables prefixed with MICROPIPE:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/micropipe/node.yaml")
//	cfg, err := loader.Load()
//
// MICROPIPE_NODE_ID, MICROPIPE_METRICS_PORT, MICROPIPE_NATS_URL and so on
// override file values. Durations are Go duration strings ("10s").
// A node without an id gets a random UUID.
package config
