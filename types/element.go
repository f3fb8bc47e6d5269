package types

// ElementDisplay controls where a client renders an Element.
type ElementDisplay string

const (
	DisplaySide   ElementDisplay = "side"
	DisplayInline ElementDisplay = "inline"
)

// Element is a named piece of content attached to an assistant reply,
// e.g. a rendered reference or a notice.
type Element struct {
	Name    string         `json:"name"`
	Content string         `json:"content"`
	Display ElementDisplay `json:"display"`
}
