package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/hub"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
)

type nopParticipant struct{}

func (*nopParticipant) Deliver(protocol.Frame) {}

func TestRun_MissingArguments(t *testing.T) {
	assert.Equal(t, 1, run(nil))
}

func TestValidatePorts(t *testing.T) {
	assert.NoError(t, validatePorts([]string{"7000", "7001"}))
	assert.Error(t, validatePorts([]string{"7000", "seven"}))
	assert.Error(t, validatePorts([]string{"70000"}))
}

func TestRun_InvalidPort(t *testing.T) {
	assert.Equal(t, 1, run([]string{"not-a-port"}))
}

func TestMux(t *testing.T) {
	r, err := reactor.New(1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	strand := r.NewStrand()

	a, _ := hub.New("7000")
	b, _ := hub.New("7001")
	require.NoError(t, strand.Call(context.Background(), func() {
		a.Enter(&nopParticipant{}, "x: ")
		a.Broadcast(protocol.TruncateFrame("hi"), nil)
	}))
	mux := newMux(map[string]*hub.Room{"7000": a, "7001": b}, "7000", strand, nil)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var stats []domain.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, []domain.Stats{
			{Port: "7000", Participants: 1, History: 1},
			{Port: "7001"},
		}, stats)
	})

	t.Run("unknown room", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?port=1", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
