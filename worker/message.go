package worker

import "fmt"

// Message kinds exchanged between host and worker.
const (
	KindVersion = "version"
	KindEval    = "eval"
	KindPrint   = "print"
)

// Message is a tagged record crossing the host/worker channel. The JSON
// names match the messages the browser terminal exchanges with its worker.
type Message struct {
	Kind  string `json:"message"`
	Value string `json:"value,omitempty"`
}

func (m Message) String() string {
	if m.Value == "" {
		return m.Kind
	}
	return fmt.Sprintf("%s(%q)", m.Kind, m.Value)
}
