package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/classora/classroom-api/internal/dto"
)

func newHubClientForTest(hub *ChatHub, userID uint, buffer int) *hubClient {
	return &hubClient{
		send:    make(chan []byte, buffer),
		opts:    HubConnectionOptions{UserID: userID, Role: "student"},
		hub:     hub,
		topics:  make(map[string]struct{}),
		closed:  make(chan struct{}),
		baseCtx: context.Background(),
	}
}

func receiveFrame(t *testing.T, client *hubClient) hubFrame {
	t.Helper()
	select {
	case raw := <-client.send:
		var frame hubFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return hubFrame{}
	}
}

func TestChatHubPublishReachesTopicSubscribers(t *testing.T) {
	hub := NewChatHub(nil, nil, "", testLogger())

	subscriber := newHubClientForTest(hub, 11, 4)
	outsider := newHubClientForTest(hub, 12, 4)
	hub.subscribe(subscriber, RoomTopic(5))
	hub.subscribe(outsider, RoomTopic(6))

	hub.Publish(RoomTopic(5), EventReceiveMessage, dto.ChatMessageResponse{ID: 1, RoomID: 5, Content: "hi"})

	frame := receiveFrame(t, subscriber)
	require.Equal(t, EventReceiveMessage, frame.Event)
	require.Empty(t, outsider.send)
}

func TestChatHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewChatHub(nil, nil, "", testLogger())

	slow := newHubClientForTest(hub, 11, 1)
	hub.subscribe(slow, RoomTopic(5))

	done := make(chan struct{})
	go func() {
		// Second publish overflows the buffer and must be dropped, not block.
		hub.Publish(RoomTopic(5), EventReceiveMessage, "one")
		hub.Publish(RoomTopic(5), EventReceiveMessage, "two")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	require.Len(t, slow.send, 1)
}

func TestChatHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewChatHub(nil, nil, "", testLogger())

	client := newHubClientForTest(hub, 11, 4)
	hub.subscribe(client, RoomTopic(5))
	hub.unsubscribe(client, RoomTopic(5))

	hub.Publish(RoomTopic(5), EventReceiveMessage, "gone")
	require.Empty(t, client.send)
}

func TestChatHubBridgeEventSelfFilter(t *testing.T) {
	hub := NewChatHub(nil, nil, "classroom", testLogger())

	client := newHubClientForTest(hub, 11, 4)
	hub.subscribe(client, RoomTopic(5))

	payload, err := json.Marshal(dto.ChatMessageResponse{ID: 9, RoomID: 5, Content: "remote"})
	require.NoError(t, err)

	own, err := json.Marshal(hubEvent{Source: hub.nodeID, Topic: RoomTopic(5), Event: EventReceiveMessage, Payload: payload})
	require.NoError(t, err)
	hub.handleBridgeEvent(own)
	require.Empty(t, client.send)

	remote, err := json.Marshal(hubEvent{Source: "other-node", Topic: RoomTopic(5), Event: EventReceiveMessage, Payload: payload})
	require.NoError(t, err)
	hub.handleBridgeEvent(remote)

	frame := receiveFrame(t, client)
	require.Equal(t, EventReceiveMessage, frame.Event)
}

func TestChatHubPublishBridgesThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	hub := NewChatHub(redisClient, nil, "classroom", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pubsub := redisClient.Subscribe(ctx, "classroom:events")
	defer pubsub.Close()
	_, err = pubsub.Receive(ctx)
	require.NoError(t, err)

	hub.Publish(RoomTopic(5), EventReceiveMessage, dto.ChatMessageResponse{ID: 1, RoomID: 5, Content: "bridged"})

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var envelope hubEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
	require.Equal(t, hub.nodeID, envelope.Source)
	require.Equal(t, RoomTopic(5), envelope.Topic)
	require.Equal(t, EventReceiveMessage, envelope.Event)
}
