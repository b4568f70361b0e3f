/*
Package graph allows to build and execute signal-flow graphs of audio
processors.

Concept

A graph is assembled with a Builder. Every factory call adds a vertex and
returns a Node. Nodes are cheap references into the builder: copying a
node never duplicates the vertex. Nodes are wired explicitly with Input and
Output ports:

    b := graph.NewBuilder()
    osc := b.SineOsc(graph.Frequency(220))
    out := b.AddOutput()
    out.Input(0).Connect(osc.Output(0))

or with the node algebra, which creates new vertices and wires operands
left to right:

    mix := osc.Mul(graph.Lit(0.2)).Add(noise.Mul(amp))

Construction errors are accumulated by the builder and Build reports all of
them at once in *GraphError.

Execution

A frozen Graph is executed by a Runtime. It can run live against a backend
or render offline to a file:

    r := graph.NewRuntime(g)
    h, err := r.Run(ctx, portaudio.Backend{})
    ...
    h.HotReload(other)
    h.Stop()

The audio goroutine never blocks: params are exchanged through wait-free
single-slot cells and hot-reloaded graphs are published atomically and
applied at the next block boundary.

Params

Param is a named live value. It's bound to the graph as a node. Every
runtime copies the graph params, so runtimes of the same graph don't affect
each other. Live values are sent to the runtime's own params:

    amp, _ := r.ParamNamed("amp")
    amp.Send(0.5)

Runtimes resolve params by name, so hot-reloaded graphs keep using the
same params.
*/
package graph
