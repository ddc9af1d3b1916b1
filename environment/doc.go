// Package environment binds components to queues and drives them.
//
// A runtime environment owns one component, its statistics collector and the
// goroutines that move messages:
//
//   - SourceRuntimeEnvironment runs Source.Run on a private goroutine or on a
//     shared Executor and inserts every produced message into its output
//     queues, releasing waiting consumers after each insert.
//   - EmitterRuntimeEnvironment, DirectResponseOperatorRuntimeEnvironment and
//     DelayedResponseOperatorRuntimeEnvironment run one consumer loop per
//     input queue. Component calls are serialized per environment.
//
// A failing or panicking message is logged, counted as an error and skipped;
// the loop carries on with the next message. Shutdown clears the running flag
// and forces a wakeup of every input queue so blocked loops exit promptly.
// Shutdown is idempotent.
package environment
