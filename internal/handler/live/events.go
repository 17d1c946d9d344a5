package live

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server to client event envelope types.
const (
	eventTypeTranscript = "transcript"
	eventTypeResponse   = "llm_response"
	eventTypeError      = "error"
)

type transcriptEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type responseEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// outbox serializes all writes to one client connection through a single
// goroutine, which gorilla requires. The queue is bounded; events to a
// stalled client are dropped rather than growing memory without limit.
type outbox struct {
	events    chan any
	done      chan struct{}
	closeOnce sync.Once
	sessionID string
}

func newOutbox(conn *websocket.Conn, size int, sessionID string) *outbox {
	if size < 1 {
		size = 256
	}
	o := &outbox{
		events:    make(chan any, size),
		done:      make(chan struct{}),
		sessionID: sessionID,
	}
	go o.writeLoop(conn)
	return o
}

// writeLoop owns the connection for writing and closes it on exit, which
// also unblocks the session's read loop during teardown.
func (o *outbox) writeLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-o.done:
			o.drain(conn)
			return
		case ev := <-o.events:
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[live] session %s: client write failed: %v", o.sessionID, err)
				return
			}
		}
	}
}

// drain flushes events queued before close, so an error or terminal event
// enqueued just ahead of teardown still reaches the client before the
// connection goes away.
func (o *outbox) drain(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	for {
		select {
		case ev := <-o.events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

// send enqueues one event. Critical events (turn errors and terminal done
// markers) wait for queue space so a turn always resolves client-side;
// everything else is dropped when a stalled client fills the queue.
func (o *outbox) send(ev any, critical bool) {
	select {
	case <-o.done:
		return
	default:
	}

	if critical {
		select {
		case o.events <- ev:
		case <-o.done:
		}
		return
	}

	select {
	case o.events <- ev:
	case <-o.done:
	default:
		log.Printf("[live] session %s: outbox full, dropping event", o.sessionID)
	}
}

// SendTranscript forwards one provider fragment to the client.
func (o *outbox) SendTranscript(text string, isFinal bool) {
	o.send(transcriptEvent{Type: eventTypeTranscript, Text: text, IsFinal: isFinal}, false)
}

// SendResponse implements the turn event sink.
func (o *outbox) SendResponse(token string, done bool) {
	o.send(responseEvent{Type: eventTypeResponse, Text: token, Done: done}, done)
}

// SendError implements the turn event sink.
func (o *outbox) SendError(code, message string) {
	o.send(errorEvent{Type: eventTypeError, Code: code, Message: message}, true)
}

func (o *outbox) close() {
	o.closeOnce.Do(func() { close(o.done) })
}
