package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	ok := Envelope{V: Version, Type: TypeHello, ID: "e1", TS: time.Now(), Payload: json.RawMessage(`{}`)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := map[string]func(*Envelope){
		"version":     func(e *Envelope) { e.V = 2 },
		"type":        func(e *Envelope) { e.Type = "" },
		"server type": func(e *Envelope) { e.Type = TypeHelloAck },
		"id":          func(e *Envelope) { e.ID = "" },
		"ts":          func(e *Envelope) { e.TS = time.Time{} },
		"payload":     func(e *Envelope) { e.Payload = nil },
	}
	for name, mutate := range cases {
		e := ok
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
