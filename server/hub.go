/******************************************************************************
 *
 *  Description :
 *
 *  Event dispatcher: routes server-generated notifications to the live
 *  sessions of their recipients.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"

	"github.com/axischat/axis/server/logs"
)

// Hub is the fan-out router. Producers (sessions, the presence tracker, the
// REST layer) publish a message with a recipient list; the hub delivers a
// copy to every live session of every recipient.
type Hub struct {
	// Registry of live sessions to deliver to.
	sessions *SessionStore

	// Channel for routing messages to recipients, buffered.
	route chan *ServerComMessage

	// Request to shutdown, unbuffered.
	shutdown chan chan<- bool
}

func newHub(sessions *SessionStore) *Hub {
	h := &Hub{
		sessions: sessions,
		// Buffered: the presence tracker generates bursts of notifications.
		route:    make(chan *ServerComMessage, 4096),
		shutdown: make(chan chan<- bool),
	}

	statsRegisterInt("RoutedMessagesTotal")
	statsRegisterInt("DroppedMessagesTotal")

	go h.run()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case msg := <-h.route:
			h.deliver(msg)

		case done := <-h.shutdown:
			// Drain whatever is queued, then stop.
			for {
				select {
				case msg := <-h.route:
					h.deliver(msg)
				default:
					logs.Info.Println("Hub shut down")
					done <- true
					return
				}
			}
		}
	}
}

// deliver sends the message to every live session of every recipient,
// skipping the originating session. Sessions with a full send queue are
// skipped, not waited for.
func (h *Hub) deliver(msg *ServerComMessage) {
	if len(msg.rcptTo) == 0 {
		return
	}

	var data []byte
	for _, uid := range msg.rcptTo {
		for _, s := range h.sessions.SessionsForUser(uid) {
			if s.sid == msg.skipSid {
				continue
			}
			if data == nil {
				// Serialize lazily: most messages have no live recipients.
				data, _ = json.Marshal(msg)
			}
			if s.queueOutBytes(data) {
				statsInc("RoutedMessagesTotal", 1)
			} else {
				statsInc("DroppedMessagesTotal", 1)
			}
		}
	}
}
