package link

/*------------------------------------------------------------------
 *
 * Purpose: Application pipeline — the thing a fully reassembled
 *	message is handed to. Kept separate from the session loop so the
 *	transport half of this package never needs to know what the
 *	payload means.
 *
 *------------------------------------------------------------------*/

import "fmt"

// Pipeline turns one inbound Message into an outbound reply Message. A
// non-nil error becomes st:"E" on the wire; the session loop is what
// maps the error to that status, not the pipeline itself.
type Pipeline interface {
	Process(msg Message) (Message, error)
}

// EchoPipeline is the reference test pipeline: it reports success and
// echoes back the function name and content it was given. Equivalent
// in spirit to a loopback digipeater that only ever re-announces what
// it heard.
type EchoPipeline struct{}

// Process implements Pipeline.
func (EchoPipeline) Process(msg Message) (Message, error) {
	fn, _ := msg.Meta["fn"].(string)

	reply := Message{
		ID: msg.ID,
		CT: fmt.Sprintf("Processed function %s with content: %s", fn, msg.CT),
		Meta: map[string]any{
			"st": "S",
		},
	}

	return reply, nil
}
