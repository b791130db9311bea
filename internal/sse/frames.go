package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-contrib/sse"

	"notify-service/internal/events"
)

// writeEvent writes one "event:<Kind>" frame whose data line is the event's
// JSON form.
func writeEvent(w io.Writer, ev *events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	var buf bytes.Buffer
	if err := sse.Encode(&buf, sse.Event{Event: string(ev.Kind()), Data: string(data)}); err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func writeKeepAlive(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
