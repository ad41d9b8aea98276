package fakeapi

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/eventapi"
)

func startServer(t *testing.T, configure ...func(s *Server)) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	for _, fn := range configure {
		fn(s)
	}
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func readMessage(t *testing.T, conn *gorilla.Conn) eventapi.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg eventapi.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestCosmeticsEndpoint(t *testing.T) {
	s := startServer(t)
	s.SetCosmetics(http.StatusOK, []byte(`{"paints":[{"id":"p1"}]}`))

	status, body := get(t, s.URL()+"/v2/cosmetics?user_identifier=login")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"paints":[{"id":"p1"}]}`, string(body))

	s.SetCosmetics(http.StatusBadGateway, nil)
	status, _ = get(t, s.URL()+"/v2/cosmetics?user_identifier=twitch_id")
	assert.Equal(t, http.StatusBadGateway, status)

	queries := s.CosmeticsQueries()
	require.Len(t, queries, 2)
	assert.Equal(t, "login", queries[0].Get(constants.UserIdentifierParam))
	assert.Equal(t, "twitch_id", queries[1].Get(constants.UserIdentifierParam))
}

func TestImageEndpoint(t *testing.T) {
	s := startServer(t)
	s.SetImage("a.png", []byte("png bytes"))

	status, body := get(t, s.ImageURL("a.png"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "png bytes", string(body))

	status, _ = get(t, s.ImageURL("missing.png"))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEventStream(t *testing.T) {
	s := startServer(t, func(s *Server) {
		s.HeartbeatInterval = 2 * time.Second
	})

	conn, res, err := gorilla.DefaultDialer.Dial(s.EventsURL(), nil)
	require.NoError(t, err)
	res.Body.Close()
	defer conn.Close()

	hello := readMessage(t, conn)
	require.Equal(t, eventapi.OpHello, hello.Op)
	var h eventapi.Hello
	require.NoError(t, json.Unmarshal(hello.Data, &h))
	assert.Equal(t, int64(2000), h.HeartbeatInterval)
	assert.Len(t, h.SessionID, constants.SessionIDLength)
	assert.Equal(t, []string{h.SessionID}, s.Sessions())

	frame, err := eventapi.NewMessage(eventapi.OpSubscribe, eventapi.Subscription{
		Type:      eventapi.TypeCosmeticAll,
		Condition: eventapi.ChannelCondition("11148817"),
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, frame))

	ack := readMessage(t, conn)
	assert.Equal(t, eventapi.OpAck, ack.Op)
	require.Len(t, s.Subscriptions(), 1)
	assert.Equal(t, "11148817", s.Subscriptions()[0].Condition["id"])

	require.NoError(t, s.Dispatch(eventapi.TypeCosmeticCreate, map[string]any{"object": map[string]any{"kind": "PAINT"}}))
	dispatch := readMessage(t, conn)
	require.Equal(t, eventapi.OpDispatch, dispatch.Op)
	var d eventapi.Dispatch
	require.NoError(t, json.Unmarshal(dispatch.Data, &d))
	assert.Equal(t, eventapi.TypeCosmeticCreate, d.Type)
	assert.JSONEq(t, `{"object":{"kind":"PAINT"}}`, string(d.Body))

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"op":99}`)))
	assert.Equal(t, eventapi.OpError, readMessage(t, conn).Op)

	require.NoError(t, s.EndStream(4000, "bye"))
	assert.Equal(t, eventapi.OpEndOfStream, readMessage(t, conn).Op)

	assert.Eventually(t, func() bool { return s.Connections() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEventStreamHeartbeats(t *testing.T) {
	s := startServer(t, func(s *Server) {
		s.HeartbeatInterval = 20 * time.Millisecond
		s.SendHeartbeats = true
	})

	conn, res, err := gorilla.DefaultDialer.Dial(s.EventsURL(), nil)
	require.NoError(t, err)
	res.Body.Close()
	defer conn.Close()

	assert.Equal(t, eventapi.OpHello, readMessage(t, conn).Op)
	assert.Equal(t, eventapi.OpHeartbeat, readMessage(t, conn).Op)
	assert.Equal(t, eventapi.OpHeartbeat, readMessage(t, conn).Op)
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newSessionID()
		assert.Len(t, id, constants.SessionIDLength)
		assert.Regexp(t, `^[0-9a-f]+$`, id)
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}
