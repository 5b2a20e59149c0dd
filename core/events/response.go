package events

const (
	// KindResponseCommitted identifies the response that won its turn.
	KindResponseCommitted Kind = "response.committed"
	// KindResponseDiscarded identifies a response rejected by arbitration.
	KindResponseDiscarded Kind = "response.discarded"
)

// ResponseCommitted carries the spoken text of the committed response.
type ResponseCommitted struct {
	Base
	Text   string
	Source string
}

// NewResponseCommitted creates a response committed event.
func NewResponseCommitted(text, source string) ResponseCommitted {
	return ResponseCommitted{Base: NewBase(KindResponseCommitted), Text: text, Source: source}
}

// ResponseDiscarded marks a response that lost commit arbitration.
type ResponseDiscarded struct {
	Base
	Source string
}

// NewResponseDiscarded creates a response discarded event.
func NewResponseDiscarded(source string) ResponseDiscarded {
	return ResponseDiscarded{Base: NewBase(KindResponseDiscarded), Source: source}
}
