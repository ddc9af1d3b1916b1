// Package component defines the capability model of pipeline components and
// the repository that builds them by (name, version).
//
// # Capabilities
//
// Every component implements Component. Its Type selects one of four roles:
//
//   - Source: produces messages from its Run loop through an IncomingMessageCallback
//   - DirectResponseOperator: maps one input message to zero or more outputs
//   - DelayedResponseOperator: buffers input and emits results when its
//     DelayedResponseWaitStrategy decides to flush
//   - Emitter: terminal sink
//
// Components never touch queues. Runtime environments (package environment)
// bind them to queues and drive them.
//
// # Repository
//
// Registry maps (name, version) to a factory. NewInstance resolves the pair,
// builds the component, assigns its id and calls Initialize:
//
//	registry := component.NewRegistry()
//	_ = registry.Register(component.Registration{
//	    Name:    "counter",
//	    Version: "1.0.0",
//	    Type:    component.TypeEmitter,
//	    Factory: func() component.Component { return counter.New() },
//	})
//	comp, err := registry.NewInstance("sink-1", "counter", "1.0.0", settings)
//
// Unknown pairs fail with errors.ErrUnknownComponent. Construction and
// initialization failures fail with errors.ErrComponentInstantiationFailed and
// keep the original cause reachable through errors.Is.
//
// Registrations can also come from Go plugins: LoadPluginDir opens every
// shared object in a directory and calls its exported Register function.
package component
