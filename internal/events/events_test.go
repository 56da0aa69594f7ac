package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-intent-settlement/internal/domain"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, domain.Event) error { return f.err }

func TestMulti_DeliversDespiteFailures(t *testing.T) {
	boom := errors.New("boom")
	rec := NewRecorder(0)

	m := NewMulti()
	m.Add("broken", failingSink{err: boom})
	m.Add("recorder", rec)
	assert.Equal(t, 2, m.Len())

	err := m.Publish(context.Background(), &domain.FeeDistributed{TotalAmount: 101})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	require.Len(t, rec.Events(), 1)
}

func TestRecorder_Limit(t *testing.T) {
	rec := NewRecorder(2)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, rec.Publish(context.Background(), &domain.TradeExecuted{Nonce: i}))
	}

	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].(*domain.TradeExecuted).Nonce)
	assert.Equal(t, uint64(3), got[1].(*domain.TradeExecuted).Nonce)
}

func TestNewEnvelope(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	a := NewEnvelope(&domain.TradeExecuted{}, now)
	b := NewEnvelope(&domain.TradeExecuted{}, now)

	assert.Equal(t, domain.EventTradeExecuted, a.Name)
	assert.Equal(t, int64(1_700_000_000_123), a.PublishedAt)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestHub_StreamsEvents(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := &domain.TradeExecuted{AmountIn: 1_000_000, AmountOut: 997_000}
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Name    string               `json:"name"`
		Payload domain.TradeExecuted `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, domain.EventTradeExecuted, env.Name)
	assert.Equal(t, uint64(997_000), env.Payload.AmountOut)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	assert.NoError(t, hub.Publish(context.Background(), &domain.FeePoolsInitialized{}))
	assert.Equal(t, 0, hub.Clients())
}
