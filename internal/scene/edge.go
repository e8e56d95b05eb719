package scene

import "fmt"

// Routing selects how a connector path is drawn.
type Routing string

const (
	RoutingDirect     Routing = "direct"
	RoutingOrthogonal Routing = "orthogonal"
)

// ParseRouting maps a persisted connection style to a Routing. The legacy
// name "diagonal" and unknown values load as direct.
func ParseRouting(s string) Routing {
	if Routing(s) == RoutingOrthogonal {
		return RoutingOrthogonal
	}
	return RoutingDirect
}

// Edge is a directed connector between two nodes.
type Edge struct {
	ID        string
	StartID   string
	EndID     string
	LineColor string
	LineWidth float64
	ArrowSize float64
	Text      string
	FontSize  int
	Routing   Routing
}

// Endpoint selects one end of an edge.
type Endpoint int

const (
	EndpointStart Endpoint = iota
	EndpointEnd
)

func (e Endpoint) String() string {
	if e == EndpointStart {
		return "start"
	}
	return "end"
}

// DefaultEdge returns a connector with the default style.
func DefaultEdge(startID, endID string) *Edge {
	return &Edge{
		StartID:   startID,
		EndID:     endID,
		LineColor: "#333333",
		LineWidth: 2,
		ArrowSize: 10,
		FontSize:  9,
		Routing:   RoutingDirect,
	}
}

// Other returns the node id at the opposite end from nodeID.
func (e *Edge) Other(nodeID string) string {
	if e.StartID == nodeID {
		return e.EndID
	}
	return e.StartID
}

// Touches reports whether nodeID is one of the endpoints.
func (e *Edge) Touches(nodeID string) bool {
	return e.StartID == nodeID || e.EndID == nodeID
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	return &c
}

func (e *Edge) String() string {
	return fmt.Sprintf("connector(%s: %s -> %s)", e.ID, e.StartID, e.EndID)
}

// EdgeStyle is a partial update of connector style. Nil fields are untouched.
type EdgeStyle struct {
	LineColor *string
	LineWidth *float64
	ArrowSize *float64
	Text      *string
	FontSize  *int
	Routing   *Routing
}

func (s EdgeStyle) apply(e *Edge) {
	if s.LineColor != nil {
		e.LineColor = *s.LineColor
	}
	if s.LineWidth != nil && *s.LineWidth > 0 {
		e.LineWidth = *s.LineWidth
	}
	if s.ArrowSize != nil && *s.ArrowSize >= 0 {
		e.ArrowSize = *s.ArrowSize
	}
	if s.Text != nil {
		e.Text = *s.Text
	}
	if s.FontSize != nil && *s.FontSize > 0 {
		e.FontSize = *s.FontSize
	}
	if s.Routing != nil {
		e.Routing = ParseRouting(string(*s.Routing))
	}
}
