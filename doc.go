// Package micropipe is an embeddable, single-node stream processing runtime.
//
// A node runs any number of pipelines. Each pipeline is a directed graph of
// components connected by in-memory queues, assembled from a JSON or YAML
// configuration and resolved against a component registry of built-ins and
// plugins.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        pipeline.Manager             │  validate, assemble, start,
//	│  (one per node, many pipelines)     │  shut down in reverse order
//	└─────────────────────────────────────┘
//	           ↓ builds
//	┌─────────────────────────────────────┐
//	│     environment.RuntimeEnvironment  │  one per component: owns its
//	│  (source, operator, emitter loops)  │  goroutines and statistics
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│         component.Component         │  SOURCE, DIRECT/DELAYED
//	│  (built-ins and .so plugins)        │  RESPONSE OPERATOR, EMITTER
//	└─────────────────────────────────────┘
//	           ↓ exchange messages through
//	┌─────────────────────────────────────┐
//	│            queue.Queue              │  producer/consumer pair with
//	│   (bounded ring or unbounded deque) │  a pluggable wait strategy
//	└─────────────────────────────────────┘
//
// A source pushes into its output queues. Operators consume from one or more
// queues and forward results to theirs; delayed response operators buffer
// input until their wait strategy flushes. Emitters consume and terminate
// the flow. Several consumers on one queue compete for its messages.
//
// # Packages
//
//   - message: the immutable body plus timestamp passed between components
//   - queue: bounded and unbounded queues and their wait strategies
//   - component: capability interfaces, settings and the registry
//   - environment: runtime environments and delayed flush strategies
//   - stats: per-component statistics, the binary wire format and sinks
//   - pipeline: validation, assembly and the lifecycle manager
//   - config: node and pipeline configuration
//   - componentregistry: registration of the built-in components
//   - natsclient: shared NATS connection with a circuit breaker
//   - metric: Prometheus registry wrapper and the /metrics server
//
// Built-in components live under input/, processor/ and output/. The node
// binary is cmd/micropipe.
//
// # Example pipeline
//
//	pipelineId: readings
//	queues:
//	  - id: raw
//	  - id: hot
//	    settings:
//	      capacity: 1024
//	      overflowPolicy: drop-oldest
//	components:
//	  - id: in
//	    type: SOURCE
//	    name: udp
//	    version: 1.0.0
//	    settings: {port: 5140}
//	    toQueues: [raw]
//	  - id: filter
//	    type: DIRECT_RESPONSE_OPERATOR
//	    name: json-filter
//	    version: 1.0.0
//	    settings: {field: sensor.kind, pattern: temp.*}
//	    fromQueues: [raw]
//	    toQueues: [hot]
//	  - id: out
//	    type: EMITTER
//	    name: file
//	    version: 1.0.0
//	    settings: {path: /var/lib/micropipe/hot.jsonl}
//	    fromQueues: [hot]
package micropipe
