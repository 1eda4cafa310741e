package types

// Event is a structured record of a single state transition, suitable for
// downstream indexing. Attribute values are decimal or hex encoded strings.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
