package models

// Coordinate is one raw pointer-move sample. Immutable once created:
// it is owned by the coordinate buffer until drained into a batch, then
// by the batch until delivered or discarded.
type Coordinate struct {
	Timestamp   int64   `json:"timestamp"` // unix milliseconds
	ClientX     float64 `json:"clientX"`
	ClientY     float64 `json:"clientY"`
	PageX       float64 `json:"pageX"`
	PageY       float64 `json:"pageY"`
	PointerType string  `json:"pointerType,omitempty"` // mouse | touch | pen
	Pressure    float64 `json:"pressure,omitempty"`
	PointerID   int     `json:"pointerId,omitempty"`
}
