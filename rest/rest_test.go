package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardshuffler.com/server/cluster"
	"cardshuffler.com/server/driver"
	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	c, err := cluster.NewLocalCluster()
	require.NoError(t, err)
	tracker, err := job.NewTracker(64)
	require.NoError(t, err)
	config := driver.DefaultConfig()
	config.ClusterPublicKey = c.PublicKey()
	d, err := driver.NewDriver(config, game.NewLedger(game.NewMemoryLedgerStore()), tracker, c)
	require.NoError(t, err)
	return NewRouter(d)
}

func doRequest(t *testing.T, r *gin.Engine, method string, path string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestCreateAndGetGame(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/game/7", `{"owner":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var status gameStatus
	decode(t, w, &status)
	assert.Equal(t, uint64(7), status.GameID)
	assert.Equal(t, "alice", status.Owner)
	assert.Equal(t, game.PhaseWaitingToShuffle, status.Phase)
	assert.Empty(t, status.CommunityCards)

	w = doRequest(t, r, http.MethodPost, "/game/7", `{"owner":"bob"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, http.MethodGet, "/game/8", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var appErr appError
	decode(t, w, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/game/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1", `{"owner":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// community cards cannot be revealed before a hand starts
	w = doRequest(t, r, http.MethodPost, "/game/1/community", `{"count":3}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, http.MethodGet, "/game/1/hole-cards", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlayHand(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(t, r, http.MethodPost, "/game/1", `{"owner":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1/hand", `{"storeHoleCards":[1],"revealHand":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result handResult
	decode(t, w, &result)
	assert.Equal(t, uint32(1), result.HandNumber)
	assert.Len(t, result.HoleCards, 3)
	assert.Len(t, result.CommunityCards, 5)
	assert.Equal(t, result.HoleCards, result.RevealedHand)
	assert.Equal(t, game.PhaseWaitingToShuffle, result.Phase)

	// cards travel as names
	var raw map[string]interface{}
	decode(t, w, &raw)
	first := raw["communityCards"].([]interface{})[0].(string)
	assert.Len(t, first, 2)

	w = doRequest(t, r, http.MethodPost, "/game/1/hand", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result = handResult{}
	decode(t, w, &result)
	assert.Equal(t, uint32(2), result.HandNumber)
	assert.Len(t, result.HoleCards, 2)
	assert.Empty(t, result.RevealedHand)
}

func TestStepByStepHand(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(t, r, http.MethodPost, "/game/1", `{"owner":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1/start-hand", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status gameStatus
	decode(t, w, &status)
	assert.Equal(t, game.PhaseShufflingDeck, status.Phase)

	w = doRequest(t, r, http.MethodPost, "/game/1/shuffle", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dealt cardsResponse
	decode(t, w, &dealt)
	assert.Len(t, dealt.Cards, 2)

	w = doRequest(t, r, http.MethodGet, "/game/1/hole-cards", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hole cardsResponse
	decode(t, w, &hole)
	assert.Equal(t, dealt.Cards, hole.Cards)

	// only a flop of three may be revealed first
	w = doRequest(t, r, http.MethodPost, "/game/1/community", `{"count":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1/community", `{"count":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var flop cardsResponse
	decode(t, w, &flop)
	assert.Len(t, flop.Cards, 3)

	for i := 0; i < 2; i++ {
		w = doRequest(t, r, http.MethodPost, "/game/1/community", `{"count":1}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// the first community card follows the two dealt hole cards
	w = doRequest(t, r, http.MethodPost, "/game/1/reveal-card", `{"index":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var single cardsResponse
	decode(t, w, &single)
	assert.Equal(t, flop.Cards[:1], single.Cards)

	w = doRequest(t, r, http.MethodPost, "/game/1/reveal-card", `{"index":40}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPost, "/game/1/end-hand", `{"changeHand":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &status)
	assert.Equal(t, game.PhaseWaitingToShuffle, status.Phase)
	assert.Empty(t, status.CommunityCards)
	assert.Equal(t, uint8(0), status.HoleCardsSize)
}

func TestDestroyGame(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(t, r, http.MethodPost, "/game/1", `{"owner":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, r, http.MethodDelete, "/game/1?owner=mallory", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, r, http.MethodDelete, "/game/1?owner=alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, r, http.MethodGet, "/game/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicKeyAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/public-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Len(t, body["publicKey"], 64)

	w = doRequest(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestSetupCrash(t *testing.T) {
	t.Setenv("CRASH_TEST", "")
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/setup-crash", `{"gameId":1,"crashPoint":"SOMEWHERE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// ignored unless crash testing is enabled
	w = doRequest(t, r, http.MethodPost, "/setup-crash", `{"gameId":1,"crashPoint":"BEFORE_APPLY"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
