// Package numa detects host NUMA topology and implements the scheduler's
// three-tier victim selection: mostly steal from a worker sharing this
// worker's node, occasionally from the node with the most apparent memory
// bandwidth, rarely from anywhere else.
package numa

import (
	"math/rand/v2"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Topology describes the CPUs grouped by NUMA node. Fallback is true when
// no real topology could be detected and Nodes is a single synthetic node
// covering every logical CPU.
type Topology struct {
	Nodes    [][]int
	Fallback bool
}

const sysfsNodeBase = "/sys/devices/system/node"

// Detect walks /sys/devices/system/node/node*/cpulist on Linux. If that
// tree is absent (container, non-Linux, permission denied) it falls back
// to runtime.NumCPU() CPUs in one synthetic node. Detect never returns an
// error: a fallback topology is always usable, just not NUMA-aware.
func Detect() (Topology, error) {
	if nodes, err := detectSysfs(); err == nil && len(nodes) > 0 {
		return Topology{Nodes: nodes}, nil
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return Topology{Nodes: [][]int{cpus}, Fallback: true}, nil
}

func detectSysfs() ([][]int, error) {
	entries, err := os.ReadDir(sysfsNodeBase)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "node") {
			if _, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node")); err == nil {
				names = append(names, e.Name())
			}
		}
	}
	if len(names) == 0 {
		return nil, os.ErrNotExist
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(names[i], "node"))
		b, _ := strconv.Atoi(strings.TrimPrefix(names[j], "node"))
		return a < b
	})

	nodes := make([][]int, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(sysfsNodeBase + "/" + name + "/cpulist")
		if err != nil {
			return nil, err
		}
		cpus, err := parseCPUList(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, cpus)
	}
	return nodes, nil
}

// parseCPUList parses Linux's "cpulist" format: comma-separated CPU ids and
// inclusive ranges, e.g. "0-3,8,10-11".
func parseCPUList(s string) ([]int, error) {
	var out []int
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, err := strconv.Atoi(part[:i])
			if err != nil {
				return nil, err
			}
			hi, err := strconv.Atoi(part[i+1:])
			if err != nil {
				return nil, err
			}
			for c := lo; c <= hi; c++ {
				out = append(out, c)
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// NodeOf returns the node index containing cpu, or -1 if not found.
func (t Topology) NodeOf(cpu int) int {
	for i, cpus := range t.Nodes {
		for _, c := range cpus {
			if c == cpu {
				return i
			}
		}
	}
	return -1
}

// HighestBandwidthNode returns the node index approximated to have the
// most memory bandwidth, by the node with the most CPUs. The pack has no
// bandwidth-benchmarking library, so CPU count stands in for it.
func (t Topology) HighestBandwidthNode() int {
	best, bestCount := 0, -1
	for i, cpus := range t.Nodes {
		if len(cpus) > bestCount {
			bestCount = len(cpus)
			best = i
		}
	}
	return best
}

// remoteSteal rate-limits remote-node steal attempts per (worker, node)
// pair, keeping a worker from hammering a remote node's deques once it's
// found one consistently empty.
const (
	remoteStealWindow = 10 * time.Millisecond
	remoteStealBurst   = 4
)

// Selector assigns each worker to a node (round-robin across detected
// nodes, proportional to none of this topology's actual CPU weighting —
// a worker array is sized independently of core counts) and picks steal
// victims per the 70/25/5 tiers.
type Selector struct {
	topo        Topology
	workerNode  []int
	remoteLimit *catrate.Limiter
}

// NewSelector builds a Selector for workerCount workers against topo.
// Workers are assigned to nodes round-robin; this is independent of each
// node's CPU count since the scheduler's worker count is typically set
// from runtime.NumCPU() as a whole, not per-node.
func NewSelector(topo Topology, workerCount int) *Selector {
	nodeCount := len(topo.Nodes)
	if nodeCount == 0 {
		nodeCount = 1
	}
	wn := make([]int, workerCount)
	for i := range wn {
		wn[i] = i % nodeCount
	}
	return &Selector{
		topo:       topo,
		workerNode: wn,
		remoteLimit: catrate.NewLimiter(map[time.Duration]int{
			remoteStealWindow: remoteStealBurst,
		}),
	}
}

// NodeOfWorker returns the NUMA node a worker was assigned to.
func (s *Selector) NodeOfWorker(workerID int) int {
	if workerID < 0 || workerID >= len(s.workerNode) {
		return 0
	}
	return s.workerNode[workerID]
}

// workersInNode returns every worker index assigned to node, excluding
// self.
func (s *Selector) workersInNode(node, self int) []int {
	var out []int
	for w, n := range s.workerNode {
		if n == node && w != self {
			out = append(out, w)
		}
	}
	return out
}

// SelectVictim picks a steal victim for the calling worker. remote reports
// whether the chosen victim is outside the worker's own node, so the
// caller can apply RemotePauseMultiplier and consult AllowRemoteSteal.
func (s *Selector) SelectVictim(workerID int) (victim int, remote bool) {
	workerCount := len(s.workerNode)
	if workerCount <= 1 {
		return workerID, false
	}

	myNode := s.NodeOfWorker(workerID)
	r := rand.Float64()

	switch {
	case r < 0.70:
		if peers := s.workersInNode(myNode, workerID); len(peers) > 0 {
			return peers[rand.IntN(len(peers))], false
		}
	case r < 0.95:
		bwNode := s.topo.HighestBandwidthNode()
		if peers := s.workersInNode(bwNode, workerID); len(peers) > 0 {
			return peers[rand.IntN(len(peers))], bwNode != myNode
		}
	}

	// 5% tier, or a fallback for an empty tier above: any other worker.
	var others []int
	for w := 0; w < workerCount; w++ {
		if w != workerID {
			others = append(others, w)
		}
	}
	if len(others) == 0 {
		return workerID, false
	}
	victim = others[rand.IntN(len(others))]
	return victim, s.NodeOfWorker(victim) != myNode
}

// AllowRemoteSteal reports whether workerID may attempt another remote
// steal against node right now, damping request frequency with a sliding
// window so a worker that keeps finding a remote node's deques empty
// backs off instead of burning cycles spinning across NUMA links.
func (s *Selector) AllowRemoteSteal(workerID, node int) bool {
	_, ok := s.remoteLimit.Allow(remoteStealKey{worker: workerID, node: node})
	return ok
}

type remoteStealKey struct{ worker, node int }
