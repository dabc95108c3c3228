package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/observability"
)

const hubSendBufferSize = 32

// ChatHub is the websocket fan-out engine. It implements Broadcaster for the
// REST path and serves live connections: clients join and leave topics, post
// messages and relay typing signals. Redis pub-sub and NATS bridge events to
// other nodes; the nodeID filter keeps a node from re-consuming its own.
type ChatHub struct {
	service     ChatService
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu     sync.RWMutex
	topics map[string]map[*hubClient]struct{}
}

// HubConnectionOptions wraps metadata extracted during the HTTP upgrade.
type HubConnectionOptions struct {
	UserID        uint
	Role          string
	CorrelationID string
	Context       context.Context
}

type hubClient struct {
	conn    *websocket.Conn
	send    chan []byte
	opts    HubConnectionOptions
	hub     *ChatHub
	topics  map[string]struct{}
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
}

type hubFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type hubInbound struct {
	Event          string `json:"event"`
	RoomID         uint   `json:"room_id"`
	Content        string `json:"content"`
	AttachmentURL  string `json:"attachment_url"`
	AttachmentType string `json:"attachment_type"`
	AttachmentName string `json:"attachment_name"`
	IsTyping       bool   `json:"is_typing"`
}

type hubEvent struct {
	Source  string          `json:"source"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewChatHub creates the hub. Redis and NATS are optional; a nil client
// disables the corresponding bridge.
func NewChatHub(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *ChatHub {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &ChatHub{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "chat_hub").Logger(),
		nodeID:      uuid.NewString(),
		topics:      make(map[string]map[*hubClient]struct{}),
	}
}

// Bind attaches the chat service the hub consults for room access checks and
// message sends. Must be called before serving connections.
func (h *ChatHub) Bind(service ChatService) {
	h.service = service
}

// Start launches the cross-node bridge consumers.
func (h *ChatHub) Start(ctx context.Context) {
	if h.redis != nil && h.redisStream != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		go h.consumeNATS(ctx)
	}
}

// Publish implements Broadcaster: local fan-out plus bridge propagation.
func (h *ChatHub) Publish(topic, event string, payload interface{}) {
	frame, err := json.Marshal(hubFrame{Event: event, Data: payload})
	if err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("failed to marshal broadcast frame")
		return
	}

	h.fanOut(topic, frame, nil)
	h.bridgePublish(topic, event, payload)
}

func (h *ChatHub) fanOut(topic string, frame []byte, except *hubClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[topic] {
		if client == except {
			continue
		}
		select {
		case client.send <- frame:
		default:
			h.logger.Warn().Str("topic", topic).Uint("user_id", client.opts.UserID).Msg("dropping event for slow client")
		}
	}
}

func (h *ChatHub) bridgePublish(topic, event string, payload interface{}) {
	if (h.redis == nil || h.redisStream == "") && (h.nats == nil || h.natsSubject == "") {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	envelope, err := json.Marshal(hubEvent{
		Source:  h.nodeID,
		Topic:   topic,
		Event:   event,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if h.redis != nil && h.redisStream != "" {
		if err := h.redis.Publish(context.Background(), h.redisStream, envelope).Err(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to publish event to redis")
		}
	}
	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, envelope); err != nil {
			h.logger.Warn().Err(err).Msg("failed to publish event to nats")
		}
	}
}

func (h *ChatHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.logger.Error().Err(err).Msg("hub redis subscription closed")
			return
		}
		h.handleBridgeEvent([]byte(msg.Payload))
	}
}

func (h *ChatHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.QueueSubscribe(h.natsSubject, "classroom-hub", func(msg *nats.Msg) {
		h.handleBridgeEvent(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain hub nats subscription")
		}
	}()
}

func (h *ChatHub) handleBridgeEvent(data []byte) {
	var event hubEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Warn().Err(err).Msg("invalid bridge event")
		return
	}

	if event.Source == h.nodeID {
		return
	}

	frame, err := json.Marshal(hubFrame{Event: event.Event, Data: json.RawMessage(event.Payload)})
	if err != nil {
		return
	}
	h.fanOut(event.Topic, frame, nil)
}

// ServeConnection runs the read/write loops for one websocket client. Blocks
// until the connection closes.
func (h *ChatHub) ServeConnection(conn *websocket.Conn, opts HubConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &hubClient{
		conn:    conn,
		send:    make(chan []byte, hubSendBufferSize),
		opts:    opts,
		hub:     h,
		topics:  make(map[string]struct{}),
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	observability.ChatConnectionsTotal().Inc()

	go client.writer()
	client.reader()
}

func (h *ChatHub) subscribe(client *hubClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*hubClient]struct{})
	}
	h.topics[topic][client] = struct{}{}
	client.topics[topic] = struct{}{}
	h.logger.Debug().Str("topic", topic).Uint("user_id", client.opts.UserID).Msg("client subscribed")
}

func (h *ChatHub) unsubscribe(client *hubClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client, topic)
}

func (h *ChatHub) removeLocked(client *hubClient, topic string) {
	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(client.topics, topic)
}

func (h *ChatHub) dropClient(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
}

func (c *hubClient) reader() {
	defer c.close()

	for {
		var inbound hubInbound
		if err := c.conn.ReadJSON(&inbound); err != nil {
			c.hub.logger.Debug().Err(err).Msg("hub read loop ended")
			return
		}

		c.dispatch(inbound)
	}
}

func (c *hubClient) dispatch(inbound hubInbound) {
	switch inbound.Event {
	case "join_room":
		topic := RoomTopic(inbound.RoomID)
		if err := c.hub.service.CanAccessRoom(c.baseCtx, inbound.RoomID, c.opts.UserID); err != nil {
			c.sendError(err)
			return
		}
		c.hub.subscribe(c, topic)

	case "leave_room":
		c.hub.unsubscribe(c, RoomTopic(inbound.RoomID))

	case "send_message":
		payload := dto.MessageSendRequest{
			Content:        inbound.Content,
			AttachmentURL:  inbound.AttachmentURL,
			AttachmentType: inbound.AttachmentType,
			AttachmentName: inbound.AttachmentName,
		}
		actor := Actor{ID: c.opts.UserID, Role: c.opts.Role}
		// The service persists and broadcasts; the sender receives the
		// message through its own room subscription like every other device.
		if _, err := c.hub.service.SendMessage(c.baseCtx, inbound.RoomID, actor, payload); err != nil {
			c.sendError(err)
		}

	case "typing":
		// Ephemeral: relayed to current subscribers minus the sender, never
		// persisted, no delivery guarantee.
		topic := RoomTopic(inbound.RoomID)
		c.hub.mu.RLock()
		_, subscribed := c.hub.topics[topic][c]
		c.hub.mu.RUnlock()
		if !subscribed {
			return
		}
		frame, err := json.Marshal(hubFrame{Event: EventUserTyping, Data: dto.TypingEvent{
			RoomID:   inbound.RoomID,
			UserID:   c.opts.UserID,
			IsTyping: inbound.IsTyping,
		}})
		if err != nil {
			return
		}
		c.hub.fanOut(topic, frame, c)

	default:
		c.sendError(errors.New("unknown event"))
	}
}

func (c *hubClient) sendError(err error) {
	frame, marshalErr := json.Marshal(hubFrame{Event: "error", Error: err.Error()})
	if marshalErr != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *hubClient) writer() {
	defer c.close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug().Err(err).Msg("hub write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.hub.logger.Debug().Err(err).Msg("hub ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.hub.dropClient(c)
		_ = c.conn.Close()
	})
}
