package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/uemerson/tokenrelay/internal/relay"
)

// sseSink implements relay.Sink over Server-Sent Events.
//
// Headers are written lazily on the first frame so that a submission rejected
// before streaming can still answer with an HTTP error status. Token frames
// become "event: message" with a JSON data line; terminal frames carry only
// their event name, after which the server closes the connection.
type sseSink struct {
	w       http.ResponseWriter
	started bool
}

func newSSESink(w http.ResponseWriter) *sseSink { return &sseSink{w: w} }

func (s *sseSink) Send(f relay.Frame) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.started = true
	}
	if f.Kind == relay.FrameMessage {
		b, err := json.Marshal(map[string]string{"token": f.Data})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", b)
		return err
	}
	_, err := fmt.Fprintf(s.w, "event: %s\n\n", f.Kind)
	return err
}

// Flush pushes buffered frames to the client immediately.
func (s *sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
