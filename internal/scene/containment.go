package scene

import (
	"strings"

	"github.com/rendis/diagrama/pkg/schema"
)

// Containment tracks the entered container and the derived visibility of
// every node and connector. Nesting is modal: only the direct children of the
// entered container are shown, never a collapsed tree.
type Containment struct {
	store   *Store
	active  string
	visible map[string]bool
}

// Active returns the entered container id, or "" at top level.
func (c *Containment) Active() string { return c.active }

// Enter makes containerID the active context. It is a no-op unless the id
// resolves to a container.
func (c *Containment) Enter(containerID string) bool {
	n, ok := c.store.nodes[containerID]
	if !ok || !n.IsContainer() {
		return false
	}
	c.active = containerID
	c.store.emit(schema.EventContextChanged, containerID, false)
	c.RecomputeAll()
	return true
}

// Leave pops one level: to the entered container's own parent, or top level.
func (c *Containment) Leave() {
	if c.active == "" {
		return
	}
	if n, ok := c.store.nodes[c.active]; ok {
		c.active = c.parentContainer(n)
	} else {
		c.active = ""
	}
	c.store.emit(schema.EventContextChanged, c.active, false)
	c.RecomputeAll()
}

// SetActive restores a persisted context. Ids that do not resolve to a
// container reset to top level.
func (c *Containment) SetActive(containerID string) {
	if containerID == "" || !c.Enter(containerID) {
		c.active = ""
		c.RecomputeAll()
	}
}

func (c *Containment) parentContainer(n *Node) string {
	p, ok := c.store.nodes[n.ParentContainerID]
	if !ok || !p.IsContainer() {
		return ""
	}
	return p.ID
}

// IsNodeVisible applies the visibility rule to n.
func (c *Containment) IsNodeVisible(n *Node) bool {
	if c.active == "" {
		return n.ParentContainerID == ""
	}
	if n.ID == c.active {
		return false
	}
	return n.ParentContainerID == c.active
}

// IsEdgeVisible reports whether both endpoints resolve and are visible.
func (c *Containment) IsEdgeVisible(e *Edge) bool {
	start, ok := c.store.nodes[e.StartID]
	if !ok {
		return false
	}
	end, ok := c.store.nodes[e.EndID]
	if !ok {
		return false
	}
	return c.IsNodeVisible(start) && c.IsNodeVisible(end)
}

// Visible returns the cached visibility of a node or connector id.
func (c *Containment) Visible(id string) bool {
	return c.visible[id]
}

// RecomputeAll re-evaluates visibility for every item and returns the ids
// whose visibility changed.
func (c *Containment) RecomputeAll() []string {
	next := make(map[string]bool, len(c.store.nodes)+len(c.store.edges))
	var changed []string
	for _, n := range c.store.Nodes() {
		v := c.IsNodeVisible(n)
		next[n.ID] = v
		if c.visible[n.ID] != v {
			changed = append(changed, n.ID)
		}
	}
	for _, e := range c.store.Edges() {
		v := c.IsEdgeVisible(e)
		next[e.ID] = v
		if c.visible[e.ID] != v {
			changed = append(changed, e.ID)
		}
	}
	c.visible = next
	if len(changed) > 0 {
		c.store.emit(schema.EventVisibilityChanged, "", false)
	}
	return changed
}

// PathString returns the breadcrumb of the entered context, e.g. "/ A / B",
// or "/" at top level. Parent cycles stop the walk.
func (c *Containment) PathString() string {
	if c.active == "" {
		return "/"
	}
	var parts []string
	seen := make(map[string]bool)
	for id := c.active; id != "" && !seen[id]; {
		seen[id] = true
		n, ok := c.store.nodes[id]
		if !ok || !n.IsContainer() {
			break
		}
		parts = append(parts, n.Label())
		id = n.ParentContainerID
	}
	if len(parts) == 0 {
		return "/"
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/ " + strings.Join(parts, " / ")
}
