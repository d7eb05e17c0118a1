// Package graph implements the device connection graph (spec §4.7): a DAG
// of devices joined by typed ports, with cycle rejection in Prepare, one
// buffer per declared port, and mixing in topological order, one dependency
// level at a time.
//
// Grounded on internal/sequencer/multi_engine.go's mutex-guarded
// map[int]VoiceEngine registry, generalized from a flat module-keyed map
// into a real graph with edges and a topological render order; the
// worker-thread fan-out uses golang.org/x/sync/errgroup, following the
// concurrency style internal/sequencer uses for its own engines.
package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kunquat/kunquat-go/internal/wbuf"
)

// PortDir distinguishes a device's input and output ports.
type PortDir int

const (
	PortIn PortDir = iota
	PortOut
)

// Port identifies one port of one device by name, e.g. "in_00", "out_00".
type Port struct {
	Device string
	Name   string
	Dir    PortDir
}

// Processor is the render contract every device in the graph implements. It
// reads from its input buffers and writes to its output buffers over
// [start, stop); devices with no signal on an input port see an invalid
// buffer (spec §4.2) and must treat it as silence.
type Processor interface {
	Process(ctx context.Context, ins, outs map[string]*wbuf.Buffer, start, stop int, sampleRate float64, tempo float64) error
}

// Device is one node of the graph: an id, its processor, and its declared
// port names (in/out, independent of what's connected).
type Device struct {
	ID        string
	Proc      Processor
	InPorts   []string
	OutPorts  []string
}

type edge struct {
	from, to Port
}

// Graph is a directed device graph. Zero value is usable via AddDevice.
type Graph struct {
	mu      sync.Mutex
	devices map[string]*Device
	edges   []edge
	order   []string // topological render order, computed by Prepare
	bufs    map[Port]*wbuf.Buffer
	edgesTo map[Port][]Port // recv port -> every send port that feeds it
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{devices: make(map[string]*Device)}
}

// AddDevice registers a device. Re-adding the same id replaces it.
func (g *Graph) AddDevice(d *Device) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.devices[d.ID] = d
}

// Connect adds a directed edge from an output port to an input port.
// Connect does not itself validate port existence; Prepare does, alongside
// cycle detection.
func (g *Graph) Connect(from, to Port) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, edge{from: from, to: to})
}

// Prepare validates the graph (port existence, acyclicity), computes a
// topological render order and allocates one buffer per occupied port, each
// sized for bufferLen frames. Must be called before Mix, and again whenever
// the connection list or buffer length changes.
func (g *Graph) Prepare(bufferLen int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	adj := make(map[string][]string) // device -> devices it feeds
	indeg := make(map[string]int)
	for id := range g.devices {
		indeg[id] = 0
	}
	hasPort := func(names []string, name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
	for _, e := range g.edges {
		fromDev, ok := g.devices[e.from.Device]
		if !ok {
			return fmt.Errorf("graph: edge references unknown device %q", e.from.Device)
		}
		toDev, ok := g.devices[e.to.Device]
		if !ok {
			return fmt.Errorf("graph: edge references unknown device %q", e.to.Device)
		}
		if !hasPort(fromDev.OutPorts, e.from.Name) {
			return fmt.Errorf("graph: edge references unknown output port %q of device %q", e.from.Name, e.from.Device)
		}
		if !hasPort(toDev.InPorts, e.to.Name) {
			return fmt.Errorf("graph: edge references unknown input port %q of device %q", e.to.Name, e.to.Device)
		}
		adj[e.from.Device] = append(adj[e.from.Device], e.to.Device)
		indeg[e.to.Device]++
	}

	order, err := topoSort(g.devices, adj, indeg)
	if err != nil {
		return err
	}
	g.order = order

	bufs := make(map[Port]*wbuf.Buffer)
	edgesTo := make(map[Port][]Port)
	for _, e := range g.edges {
		if _, ok := bufs[e.from]; !ok {
			bufs[e.from] = wbuf.New(bufferLen)
		}
		edgesTo[e.to] = append(edgesTo[e.to], e.from)
	}
	// Every declared port gets a retained buffer even without an edge, so a
	// terminal device's output (the graph's master mix, typically) is still
	// readable through Output after Mix. Recv ports get a dedicated buffer
	// distinct from any sender's, since a port may be fed by more than one
	// edge (spec §3, §4.7): Mix sums every incoming send buffer into it
	// rather than aliasing the last edge's buffer.
	for id, d := range g.devices {
		for _, name := range d.InPorts {
			p := Port{Device: id, Name: name, Dir: PortIn}
			if _, ok := bufs[p]; !ok {
				bufs[p] = wbuf.New(bufferLen)
			}
		}
		for _, name := range d.OutPorts {
			p := Port{Device: id, Name: name, Dir: PortOut}
			if _, ok := bufs[p]; !ok {
				bufs[p] = wbuf.New(bufferLen)
			}
		}
	}
	g.bufs = bufs
	g.edgesTo = edgesTo
	return nil
}

// topoSort runs Kahn's algorithm, giving a deterministic cycle error
// matching spec §8's "graph contains a cycle" scenario.
func topoSort(devices map[string]*Device, adj map[string][]string, indeg map[string]int) ([]string, error) {
	var queue []string
	for id := range devices {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	// Deterministic order: the queue above iterates a map, so sort it once
	// before draining to keep render order stable across runs.
	sortStrings(queue)

	var order []string
	remaining := make(map[string]int, len(indeg))
	for k, v := range indeg {
		remaining[k] = v
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		next := append([]string(nil), adj[id]...)
		sortStrings(next)
		for _, n := range next {
			remaining[n]--
			if remaining[n] == 0 {
				queue = append(queue, n)
			}
		}
	}
	if len(order) != len(devices) {
		return nil, fmt.Errorf("graph: device graph contains a cycle")
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (g *Graph) bufferFor(p Port) *wbuf.Buffer {
	if b, ok := g.bufs[p]; ok {
		return b
	}
	return nil
}

// Mix renders every device once, in topological order, over [start, stop).
// Independent devices (no edge between them, directly or transitively) are
// rendered concurrently via an errgroup; devices with a dependency always
// render after everything that feeds them.
func (g *Graph) Mix(ctx context.Context, start, stop int, sampleRate, tempo float64) error {
	g.mu.Lock()
	order := append([]string(nil), g.order...)
	g.mu.Unlock()

	depends := g.dependencyLevels(order)

	for _, level := range depends {
		grp, gctx := errgroup.WithContext(ctx)
		for _, id := range level {
			id := id
			grp.Go(func() error {
				return g.renderDevice(gctx, id, start, stop, sampleRate, tempo)
			})
		}
		if err := grp.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// dependencyLevels groups the topological order into waves: every device
// in a wave only depends on devices in earlier waves, so a wave can render
// fully in parallel.
func (g *Graph) dependencyLevels(order []string) [][]string {
	level := make(map[string]int)
	for _, id := range order {
		max := -1
		for _, e := range g.edges {
			if e.to.Device == id {
				if l, ok := level[e.from.Device]; ok && l > max {
					max = l
				}
			}
		}
		level[id] = max + 1
	}
	var levels [][]string
	for _, id := range order {
		l := level[id]
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	return levels
}

func (g *Graph) renderDevice(ctx context.Context, id string, start, stop int, sampleRate, tempo float64) error {
	g.mu.Lock()
	d := g.devices[id]
	edgesTo := g.edgesTo
	g.mu.Unlock()
	if d == nil || d.Proc == nil {
		return nil
	}

	ins := make(map[string]*wbuf.Buffer, len(d.InPorts))
	for _, name := range d.InPorts {
		p := Port{Device: id, Name: name, Dir: PortIn}
		b := g.bufferFor(p)
		if b == nil {
			continue
		}
		srcs := edgesTo[p]
		if len(srcs) == 0 {
			// Nothing connects here: leave the buffer invalid so Process
			// treats the port as silence per spec §4.2.
			b.Invalidate()
		} else {
			b.Clear(start, stop)
			for _, src := range srcs {
				if srcBuf := g.bufferFor(src); srcBuf != nil && srcBuf.Valid() {
					b.MixFrom(srcBuf, start, stop, nil)
				}
			}
		}
		ins[name] = b
	}
	outs := make(map[string]*wbuf.Buffer, len(d.OutPorts))
	for _, name := range d.OutPorts {
		b := g.bufferFor(Port{Device: id, Name: name, Dir: PortOut})
		if b == nil {
			b = wbuf.New(stop)
		}
		outs[name] = b
	}
	return d.Proc.Process(ctx, ins, outs, start, stop, sampleRate, tempo)
}

// Output returns the buffer of a device's output port, or nil if that port
// was neither declared by the device nor used by an edge when Prepare ran.
func (g *Graph) Output(device, port string) *wbuf.Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bufferFor(Port{Device: device, Name: port, Dir: PortOut})
}
