package sim

import "github.com/sirupsen/logrus"

// Topology is the symmetric neighbor relation between registered endpoints.
// All neighbor mutation goes through Connect and Disconnect, which always
// update both sides, so symmetry holds at every observation point.
type Topology struct {
	nodes map[string]*Endpoint
}

func newTopology(nodes map[string]*Endpoint) *Topology {
	return &Topology{nodes: nodes}
}

// Connect links a and b. It is a no-op if either id is unregistered, if a == b,
// or if the link already exists. It returns true if an edge was added.
func (g *Topology) Connect(a, b string) bool {
	na, nb := g.nodes[a], g.nodes[b]
	if na == nil || nb == nil || na == nb {
		return false
	}
	if na.hasNeighbor(nb) && nb.hasNeighbor(na) {
		return false
	}
	na.addNeighbor(nb)
	nb.addNeighbor(na)
	logrus.Debugf("connected %s <-> %s", a, b)
	return true
}

// Disconnect removes the link between a and b. It is a no-op if either id is
// unregistered or the link does not exist. It returns true if an edge was removed.
func (g *Topology) Disconnect(a, b string) bool {
	na, nb := g.nodes[a], g.nodes[b]
	if na == nil || nb == nil {
		return false
	}
	if !na.hasNeighbor(nb) && !nb.hasNeighbor(na) {
		return false
	}
	na.removeNeighbor(nb)
	nb.removeNeighbor(na)
	logrus.Debugf("disconnected %s <-> %s", a, b)
	return true
}

// Detach removes every link of id.
func (g *Topology) Detach(id string) {
	n := g.nodes[id]
	if n == nil {
		return
	}
	for _, other := range append([]*Endpoint(nil), n.neighbors...) {
		g.Disconnect(id, other.id)
	}
}

// Neighbors returns the neighbor ids of id in connection order.
func (g *Topology) Neighbors(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return n.Neighbors()
}

// Symmetric reports whether a∈neighbors(b) ⟺ b∈neighbors(a) holds for every pair.
func (g *Topology) Symmetric() bool {
	for _, n := range g.nodes {
		for _, m := range n.neighbors {
			if !m.hasNeighbor(n) {
				return false
			}
		}
	}
	return true
}
