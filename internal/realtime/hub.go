package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outbound carries one encoded payload toward every subscriber of a channel.
type Outbound struct {
	Channel string
	Payload []byte
}

// Subscription attaches or detaches a live client on a named channel.
type Subscription struct {
	Client  *Client
	Channel string
}

// Hub maintains the set of active clients and fans events out to channel
// subscribers. Publishes go through a single loop, so events from one caller
// reach a subscriber in the order they were published. Delivery is best
// effort: a full client buffer drops the event for that client, and a
// channel with no subscribers swallows the publish silently.
type Hub struct {
	// Subscribers per channel name ("user:<id>", "group:<id>").
	channels map[string]map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Subscribe and Unsubscribe adjust a live client's channel set, for
	// example when the user joins or leaves a group mid-connection.
	Subscribe   chan *Subscription
	Unsubscribe chan *Subscription

	// Outbound events from the service layer.
	Send chan *Outbound

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		channels:    make(map[string]map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Subscribe:   make(chan *Subscription),
		Unsubscribe: make(chan *Subscription),
		Send:        make(chan *Outbound, 64),
	}
}

// Run starts the hub's processing loop.
func (h *Hub) Run() {
	log.Println("Realtime hub started.")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			for _, ch := range client.Channels {
				h.attach(client, ch)
			}
			log.Printf("Client registered for User %s on %d channels", client.UserID, len(client.Channels))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			for _, ch := range client.Channels {
				h.detach(client, ch)
			}
			h.mu.Unlock()

		case sub := <-h.Subscribe:
			h.mu.Lock()
			h.attach(sub.Client, sub.Channel)
			sub.Client.Channels = append(sub.Client.Channels, sub.Channel)
			h.mu.Unlock()

		case sub := <-h.Unsubscribe:
			h.mu.Lock()
			h.detach(sub.Client, sub.Channel)
			for i, ch := range sub.Client.Channels {
				if ch == sub.Channel {
					sub.Client.Channels = append(sub.Client.Channels[:i], sub.Client.Channels[i+1:]...)
					break
				}
			}
			h.mu.Unlock()

		case out := <-h.Send:
			h.mu.RLock()
			for client := range h.channels[out.Channel] {
				select {
				case client.Send <- out.Payload:
				default:
					log.Printf("Send buffer full for client of User %s. Event dropped for this client.", client.UserID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) attach(client *Client, channel string) {
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
}

func (h *Hub) detach(client *Client, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish queues an event for every subscriber of the channel. Callers never
// learn whether anyone was listening.
func (h *Hub) Publish(channel string, event *Event) {
	payload := event.Marshal()
	if payload == nil {
		return
	}
	select {
	case h.Send <- &Outbound{Channel: channel, Payload: payload}:
	case <-time.After(1 * time.Second):
		log.Printf("Timeout queuing %s event for channel %s. Hub might be busy or blocked.", event.Event, channel)
	}
}

// PublishToUser pushes an event on a user's private channel.
func (h *Hub) PublishToUser(userID uuid.UUID, event *Event) {
	h.Publish(UserChannel(userID), event)
}

// PublishToGroup pushes an event on a group's shared channel.
func (h *Hub) PublishToGroup(groupID uuid.UUID, event *Event) {
	h.Publish(GroupChannel(groupID), event)
}

// SubscribeUser attaches every live client of a user to an extra channel,
// for example when the user is added to a group mid-connection. Clients
// that connect later pick the channel up at handshake time instead.
func (h *Hub) SubscribeUser(userID uuid.UUID, channel string) {
	for _, client := range h.clientsOf(userID) {
		h.Subscribe <- &Subscription{Client: client, Channel: channel}
	}
}

// UnsubscribeUser detaches every live client of a user from a channel.
func (h *Hub) UnsubscribeUser(userID uuid.UUID, channel string) {
	for _, client := range h.clientsOf(userID) {
		h.Unsubscribe <- &Subscription{Client: client, Channel: channel}
	}
}

func (h *Hub) clientsOf(userID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.channels[UserChannel(userID)]))
	for client := range h.channels[UserChannel(userID)] {
		clients = append(clients, client)
	}
	return clients
}

// Connected reports whether a user has at least one live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[UserChannel(userID)]) > 0
}
