package cluster

import (
	"fmt"
	"sync"

	"gridsql/core"
)

// Node is one member of the cluster topology. Exactly one node per query
// session is local: the coordinator that received the query.
type Node struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Address  string `json:"address"`
	Local    bool   `json:"local"`
}

// IsLocal reports whether this node is the coordinator for the session.
func (n *Node) IsLocal() bool { return n.Local }

// Cluster is the ordered registry of nodes participating in a query
// session. Registration order is an externally observable contract: every
// node list the engine emits (fetch sources, task assignments) follows it.
type Cluster struct {
	mutex  sync.RWMutex
	nodes  []*Node
	byName map[string]*Node
}

// NewCluster creates an empty cluster registry.
func NewCluster() *Cluster {
	return &Cluster{byName: make(map[string]*Node)}
}

// AddNode registers a remote node under a unique name.
func (c *Cluster) AddNode(name string, priority int, address string) error {
	return c.add(&Node{Name: name, Priority: priority, Address: address})
}

// AddLocalNode registers the node that received the query. A cluster has
// at most one local node.
func (c *Cluster) AddLocalNode(name string, priority int, address string) error {
	return c.add(&Node{Name: name, Priority: priority, Address: address, Local: true})
}

func (c *Cluster) add(node *Node) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.byName[node.Name]; exists {
		return fmt.Errorf("node %s is already registered", node.Name)
	}
	if node.Local {
		for _, existing := range c.nodes {
			if existing.Local {
				return fmt.Errorf("local node %s is already registered", existing.Name)
			}
		}
	}
	c.nodes = append(c.nodes, node)
	c.byName[node.Name] = node

	core.GetTracer().Debug(core.TraceComponentCluster, "Node registered", core.TraceContext(
		"name", node.Name,
		"address", node.Address,
		"local", node.Local,
	))
	return nil
}

// Nodes returns all registered nodes in registration order.
func (c *Cluster) Nodes() []*Node {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	nodes := make([]*Node, len(c.nodes))
	copy(nodes, c.nodes)
	return nodes
}

// GetNode looks a node up by name.
func (c *Cluster) GetNode(name string) (*Node, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	node, exists := c.byName[name]
	if !exists {
		return nil, fmt.Errorf("node %s is not registered", name)
	}
	return node, nil
}

// LocalNode returns the node marked local for this session.
func (c *Cluster) LocalNode() (*Node, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, node := range c.nodes {
		if node.Local {
			return node, nil
		}
	}
	return nil, fmt.Errorf("cluster has no local node")
}

// IsEmpty reports whether the cluster has no remote nodes, i.e. the engine
// runs standalone.
func (c *Cluster) IsEmpty() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, node := range c.nodes {
		if !node.Local {
			return false
		}
	}
	return true
}

// Size returns the number of registered nodes.
func (c *Cluster) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.nodes)
}
