package relay

import "strings"

// eventDelimiter terminates one SSE event block.
const eventDelimiter = "\n\n"

// Framer reassembles complete SSE events from an arbitrarily chunked byte
// stream. Partial trailing text is retained across pushes; a partial event is
// never emitted and a complete event is emitted exactly once, in order.
type Framer struct {
	// rest holds undelimited trailing text between pushes.
	rest string
}

// Push appends a chunk and returns every newly completed event, each
// including its trailing delimiter.
func (f *Framer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	pending := f.rest + string(chunk)

	var events []string
	for {
		idx := strings.Index(pending, eventDelimiter)
		if idx < 0 {
			break
		}
		cut := idx + len(eventDelimiter)
		events = append(events, pending[:cut])
		pending = pending[cut:]
	}
	f.rest = pending
	return events
}

// Pending returns the buffered partial event, if any.
func (f *Framer) Pending() string {
	return f.rest
}
