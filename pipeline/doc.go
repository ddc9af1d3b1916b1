// Package pipeline assembles pipelines from configurations and owns their
// lifecycle.
//
// Manager.Instantiate runs the assembly in a fixed order:
//
//  1. Validate the configuration (identifiers, queue references, the
//     directions allowed per component type).
//  2. Create every queue.
//  3. Create and initialize every component through the component registry.
//  4. Wrap each component in the runtime environment matching its type.
//  5. Start the environments: emitters first, operators with downstream
//     operators first, sources last, so no source produces before its
//     readers are attached.
//
// If any step fails everything built so far is shut down before the error
// is returned: no partially running pipeline is ever registered. StatusOf
// maps the error onto the instantiation Status reported to callers.
//
// Manager.Shutdown stops environments in reverse start order, flushes the
// last statistics window, stops the reporter and shuts the queues down.
// Teardown is best effort and always visits every component.
//
// When PipelineConfiguration.StatsQueueID is set, encoded statistics of every
// component are inserted into that queue each stats interval, so a pipeline
// can process its own statistics like any other stream.
package pipeline
