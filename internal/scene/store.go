// Package scene is the diagram entity model: nodes, connectors, the kind
// strategy table, the id-indexed graph store and the containment engine that
// derives visibility from the entered container.
package scene

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/diagrama/internal/geometry"
	"github.com/rendis/diagrama/pkg/schema"
)

// IDPrefix prefixes every allocated node and connector id.
const IDPrefix = "item_"

// Event is a change notification emitted by the Store.
type Event struct {
	Type   string
	ID     string
	IsEdge bool
}

// Listener receives store events synchronously, after the mutation completed.
type Listener func(Event)

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the kind registry. Defaults to DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the single owner of all nodes and connectors of a diagram.
// Cross references are ids; a stale id is a lookup miss, never a crash.
type Store struct {
	registry  *Registry
	logger    *slog.Logger
	nodes     map[string]*Node
	edges     map[string]*Edge
	order     []string
	nextID    int
	ctx       *Containment
	listeners []Listener
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:  make(map[string]*Node),
		edges:  make(map[string]*Edge),
		nextID: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s.ctx = &Containment{store: s, visible: make(map[string]bool)}
	return s
}

// Registry returns the kind registry.
func (s *Store) Registry() *Registry { return s.registry }

// Context returns the containment engine bound to this store.
func (s *Store) Context() *Containment { return s.ctx }

// Subscribe registers a listener for item_added, item_removed, item_changed,
// connector_changed, visibility_changed, context_changed and scene_cleared.
func (s *Store) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(typ, id string, isEdge bool) {
	for _, l := range s.listeners {
		l(Event{Type: typ, ID: id, IsEdge: isEdge})
	}
}

// NextID returns the counter used for the next allocated id.
func (s *Store) NextID() int { return s.nextID }

// SetNextID moves the id counter forward. It never moves backwards past an
// id already in use.
func (s *Store) SetNextID(n int) {
	if n < 1 {
		n = 1
	}
	if floor := s.maxSeq() + 1; n < floor {
		n = floor
	}
	s.nextID = n
}

func (s *Store) allocID() string {
	for {
		id := IDPrefix + strconv.Itoa(s.nextID)
		s.nextID++
		if !s.exists(id) {
			return id
		}
	}
}

func (s *Store) exists(id string) bool {
	_, n := s.nodes[id]
	_, e := s.edges[id]
	return n || e
}

func (s *Store) maxSeq() int {
	hi := 0
	for _, id := range s.order {
		if n, ok := ParseSeq(id); ok && n > hi {
			hi = n
		}
	}
	return hi
}

// ParseSeq extracts N from an "item_N" id.
func ParseSeq(id string) (int, bool) {
	if !strings.HasPrefix(id, IDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, IDPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Node returns the node with the given id.
func (s *Store) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Edge returns the connector with the given id.
func (s *Store) Edge(id string) (*Edge, bool) {
	e, ok := s.edges[id]
	return e, ok
}

// Nodes returns all nodes in insertion order.
func (s *Store) Nodes() []*Node {
	out := make([]*Node, 0, len(s.nodes))
	for _, id := range s.order {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns all connectors in insertion order.
func (s *Store) Edges() []*Edge {
	out := make([]*Edge, 0, len(s.edges))
	for _, id := range s.order {
		if e, ok := s.edges[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of nodes and connectors.
func (s *Store) Len() (nodes, edges int) { return len(s.nodes), len(s.edges) }

// Children returns the live children listed in a container's ChildIDs.
// Ids that do not resolve, or whose node points elsewhere, are skipped.
func (s *Store) Children(id string) []*Node {
	parent, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var out []*Node
	for _, cid := range parent.ChildIDs {
		c, ok := s.nodes[cid]
		if !ok || c.ParentContainerID != id {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AddNode builds a node of the given kind at pos and inserts it at top level.
func (s *Store) AddNode(kind string, pos geometry.Point, props map[string]any) (*Node, error) {
	n, err := s.registry.Build(kind, props)
	if err != nil {
		return nil, err
	}
	n.Position = pos
	return s.InsertNode(n, false), nil
}

// InsertNode inserts a detached node. With keepID the node's id is kept when
// it is free; otherwise a new id is allocated. Parent links are taken as is.
func (s *Store) InsertNode(n *Node, keepID bool) *Node {
	if !keepID || n.ID == "" || s.exists(n.ID) {
		n.ID = s.allocID()
	} else if seq, ok := ParseSeq(n.ID); ok && seq >= s.nextID {
		s.nextID = seq + 1
	}
	if n.Properties == nil {
		n.Properties = map[string]any{}
	}
	if !n.IsContainer() {
		n.ChildIDs = nil
	}
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	s.ctx.RecomputeAll()
	s.logger.Debug("node added", "item_id", n.ID, "kind", n.Kind)
	s.emit(schema.EventItemAdded, n.ID, false)
	return n
}

// RemoveNode deletes a node, its descendants and every connector touching
// any removed node. Unknown ids are ignored.
func (s *Store) RemoveNode(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.removeNode(n, make(map[string]bool))
	s.ctx.RecomputeAll()
}

func (s *Store) removeNode(n *Node, seen map[string]bool) {
	if seen[n.ID] {
		return
	}
	seen[n.ID] = true

	for _, c := range s.Children(n.ID) {
		s.removeNode(c, seen)
	}
	for _, other := range s.Nodes() {
		if other.ParentContainerID == n.ID {
			s.removeNode(other, seen)
		}
	}

	if s.ctx.active == n.ID {
		s.ctx.active = s.ctx.parentContainer(n)
		s.emit(schema.EventContextChanged, s.ctx.active, false)
	}
	if parent, ok := s.nodes[n.ParentContainerID]; ok {
		parent.removeChild(n.ID)
	}
	for _, e := range s.EdgesIncidentTo(n.ID) {
		s.removeEdge(e)
	}

	delete(s.nodes, n.ID)
	delete(s.ctx.visible, n.ID)
	s.dropOrder(n.ID)
	s.logger.Debug("node removed", "item_id", n.ID)
	s.emit(schema.EventItemRemoved, n.ID, false)
}

func (s *Store) dropOrder(id string) {
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// AddEdge connects two live, distinct nodes. It returns nil when rejected.
func (s *Store) AddEdge(startID, endID string) *Edge {
	return s.InsertEdge(DefaultEdge(startID, endID), false)
}

// InsertEdge inserts a detached connector, or returns nil if its endpoints
// are equal or do not resolve.
func (s *Store) InsertEdge(e *Edge, keepID bool) *Edge {
	if e.StartID == e.EndID {
		return nil
	}
	if _, ok := s.nodes[e.StartID]; !ok {
		return nil
	}
	if _, ok := s.nodes[e.EndID]; !ok {
		return nil
	}
	if !keepID || e.ID == "" || s.exists(e.ID) {
		e.ID = s.allocID()
	} else if seq, ok := ParseSeq(e.ID); ok && seq >= s.nextID {
		s.nextID = seq + 1
	}
	if e.Routing == "" {
		e.Routing = RoutingDirect
	}
	s.edges[e.ID] = e
	s.order = append(s.order, e.ID)
	s.ctx.RecomputeAll()
	s.logger.Debug("connector added", "item_id", e.ID, "start", e.StartID, "end", e.EndID)
	s.emit(schema.EventItemAdded, e.ID, true)
	return e
}

// RemoveEdge deletes a connector. Unknown ids are ignored.
func (s *Store) RemoveEdge(id string) {
	if e, ok := s.edges[id]; ok {
		s.removeEdge(e)
	}
}

func (s *Store) removeEdge(e *Edge) {
	delete(s.edges, e.ID)
	delete(s.ctx.visible, e.ID)
	s.dropOrder(e.ID)
	s.emit(schema.EventItemRemoved, e.ID, true)
}

// EdgesIncidentTo returns every connector starting or ending at nodeID.
func (s *Store) EdgesIncidentTo(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range s.Edges() {
		if e.Touches(nodeID) {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the store, resets the id counter and the entered container.
func (s *Store) Clear() {
	s.nodes = make(map[string]*Node)
	s.edges = make(map[string]*Edge)
	s.order = nil
	s.nextID = 1
	s.ctx.active = ""
	s.ctx.visible = make(map[string]bool)
	s.emit(schema.EventSceneCleared, "", false)
}

func (s *Store) mustNode(id string) (*Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "item %q not found", id).WithItem(id)
	}
	return n, nil
}

func (s *Store) mustEdge(id string) (*Edge, error) {
	e, ok := s.edges[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "connector %q not found", id).WithItem(id)
	}
	return e, nil
}

// nodeChanged notifies listeners of a geometry or style change and asks
// every incident connector to recompute.
func (s *Store) nodeChanged(n *Node) {
	s.emit(schema.EventItemChanged, n.ID, false)
	for _, e := range s.EdgesIncidentTo(n.ID) {
		s.emit(schema.EventConnectorChanged, e.ID, true)
	}
}

// MoveNode sets a node's top-left position.
func (s *Store) MoveNode(id string, pos geometry.Point) error {
	n, err := s.mustNode(id)
	if err != nil {
		return err
	}
	if !pos.Finite() {
		return schema.NewError(schema.ErrCodeValidation, "position must be finite").WithItem(id)
	}
	n.Position = pos
	s.nodeChanged(n)
	return nil
}

// SetBounds sets position and size, clamping the size to MinNodeSize.
func (s *Store) SetBounds(id string, r geometry.Rect) error {
	n, err := s.mustNode(id)
	if err != nil {
		return err
	}
	if !r.Min().Finite() || !r.Max().Finite() {
		return schema.NewError(schema.ErrCodeValidation, "bounds must be finite").WithItem(id)
	}
	n.Position = r.Min()
	n.Width = max(r.W, MinNodeSize)
	n.Height = max(r.H, MinNodeSize)
	s.nodeChanged(n)
	return nil
}

// SetNodeProperties merges props into the node's properties.
func (s *Store) SetNodeProperties(id string, props map[string]any) error {
	n, err := s.mustNode(id)
	if err != nil {
		return err
	}
	mergeProps(n.Properties, props)
	if spec, ok := s.registry.Lookup(n.Kind); ok && spec.Normalize != nil {
		spec.Normalize(n)
	}
	s.nodeChanged(n)
	return nil
}

// SetEdgeStyle applies a partial style update to a connector.
func (s *Store) SetEdgeStyle(id string, style EdgeStyle) error {
	e, err := s.mustEdge(id)
	if err != nil {
		return err
	}
	style.apply(e)
	s.emit(schema.EventConnectorChanged, e.ID, true)
	return nil
}

// Reparent moves a node into containerID, or to top level when containerID
// is empty. Moving a container into itself or a descendant is rejected.
func (s *Store) Reparent(id, containerID string) error {
	n, err := s.mustNode(id)
	if err != nil {
		return err
	}
	if containerID != "" {
		target, err := s.mustNode(containerID)
		if err != nil {
			return err
		}
		if !target.IsContainer() {
			return schema.NewErrorf(schema.ErrCodeValidation, "item %q is not a container", containerID).WithItem(id)
		}
		if s.isAncestorOrSelf(id, target) {
			return schema.NewErrorf(schema.ErrCodeConflict, "cannot move %q into its own descendant %q", id, containerID).WithItem(id)
		}
	}
	if n.ParentContainerID == containerID {
		if p, ok := s.nodes[containerID]; ok {
			p.addChild(id)
		}
		return nil
	}
	if old, ok := s.nodes[n.ParentContainerID]; ok {
		old.removeChild(id)
	}
	n.ParentContainerID = containerID
	if p, ok := s.nodes[containerID]; ok {
		p.addChild(id)
	}
	s.ctx.RecomputeAll()
	s.emit(schema.EventItemChanged, id, false)
	return nil
}

// isAncestorOrSelf reports whether id is target or one of its ancestors.
func (s *Store) isAncestorOrSelf(id string, target *Node) bool {
	seen := make(map[string]bool)
	for cur := target; cur != nil && !seen[cur.ID]; {
		if cur.ID == id {
			return true
		}
		seen[cur.ID] = true
		next, ok := s.nodes[cur.ParentContainerID]
		if !ok {
			break
		}
		cur = next
	}
	return false
}

// Reconnect rewires one end of a connector to nodeID.
func (s *Store) Reconnect(edgeID string, end Endpoint, nodeID string) error {
	e, err := s.mustEdge(edgeID)
	if err != nil {
		return err
	}
	if _, err := s.mustNode(nodeID); err != nil {
		return err
	}
	other := e.EndID
	if end == EndpointEnd {
		other = e.StartID
	}
	if other == nodeID {
		return schema.NewError(schema.ErrCodeConflict, "connector cannot start and end on the same item").WithItem(edgeID)
	}
	if end == EndpointStart {
		e.StartID = nodeID
	} else {
		e.EndID = nodeID
	}
	s.ctx.RecomputeAll()
	s.emit(schema.EventConnectorChanged, e.ID, true)
	return nil
}

// LayerAction is a z-order change.
type LayerAction string

const (
	LayerBringToFront LayerAction = "bring_to_front"
	LayerSendToBack   LayerAction = "send_to_back"
	LayerBringForward LayerAction = "bring_forward"
	LayerSendBackward LayerAction = "send_backward"
)

// ApplyLayer changes a node's z value relative to its siblings, the nodes
// sharing its parent container.
func (s *Store) ApplyLayer(id string, action LayerAction) error {
	n, err := s.mustNode(id)
	if err != nil {
		return err
	}
	var sibs []*Node
	for _, o := range s.Nodes() {
		if o.ID != id && o.ParentContainerID == n.ParentContainerID {
			sibs = append(sibs, o)
		}
	}
	sort.SliceStable(sibs, func(i, j int) bool { return sibs[i].Z < sibs[j].Z })

	switch action {
	case LayerBringToFront:
		if len(sibs) > 0 && sibs[len(sibs)-1].Z >= n.Z {
			n.Z = sibs[len(sibs)-1].Z + 1
		}
	case LayerSendToBack:
		if len(sibs) > 0 && sibs[0].Z <= n.Z {
			n.Z = sibs[0].Z - 1
		}
	case LayerBringForward:
		for _, o := range sibs {
			if o.Z > n.Z {
				n.Z, o.Z = o.Z, n.Z
				s.emit(schema.EventItemChanged, o.ID, false)
				break
			}
			if o.Z == n.Z {
				n.Z++
				break
			}
		}
	case LayerSendBackward:
		for i := len(sibs) - 1; i >= 0; i-- {
			o := sibs[i]
			if o.Z < n.Z {
				n.Z, o.Z = o.Z, n.Z
				s.emit(schema.EventItemChanged, o.ID, false)
				break
			}
			if o.Z == n.Z {
				n.Z--
				break
			}
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown layer action %q", action).WithItem(id)
	}
	s.emit(schema.EventItemChanged, id, false)
	return nil
}

// VisibleNodes returns the visible nodes in paint order: ascending z, ties by
// insertion order.
func (s *Store) VisibleNodes() []*Node {
	var out []*Node
	for _, n := range s.Nodes() {
		if s.ctx.Visible(n.ID) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out
}

// VisibleEdges returns the visible connectors in insertion order.
func (s *Store) VisibleEdges() []*Edge {
	var out []*Edge
	for _, e := range s.Edges() {
		if s.ctx.Visible(e.ID) {
			out = append(out, e)
		}
	}
	return out
}

// VisibleBounds returns the union of visible node rectangles, handles
// included. It is empty when nothing is visible.
func (s *Store) VisibleBounds() geometry.Rect {
	var r geometry.Rect
	for _, n := range s.VisibleNodes() {
		r = r.Union(n.HandleBounds())
	}
	return r
}

func (s *Store) String() string {
	return fmt.Sprintf("scene(%d nodes, %d connectors)", len(s.nodes), len(s.edges))
}
