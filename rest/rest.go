package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/crashtest"
	"cardshuffler.com/server/driver"
	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
	"cardshuffler.com/server/poker"
)

var restLogger = log.With().Str("logger_name", "rest::api").Logger()

//
// APP error definition
//
type appError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type gameStatus struct {
	GameID             uint64       `json:"gameId"`
	Owner              string       `json:"owner"`
	Phase              game.Phase   `json:"phase"`
	HandNumber         uint32       `json:"handNumber"`
	CommunityCards     []poker.Card `json:"communityCards"`
	HoleCardsSize      uint8        `json:"holeCardsSize"`
	CardsDealt         uint8        `json:"cardsDealt"`
	PlayerEncPublicKey string       `json:"playerEncPublicKey"`
}

type handResult struct {
	GameID         uint64       `json:"gameId"`
	HandNumber     uint32       `json:"handNumber"`
	HoleCards      []poker.Card `json:"holeCards"`
	CommunityCards []poker.Card `json:"communityCards"`
	RevealedHand   []poker.Card `json:"revealedHand,omitempty"`
	Phase          game.Phase   `json:"phase"`
}

type cardsResponse struct {
	GameID uint64       `json:"gameId"`
	Cards  []poker.Card `json:"cards"`
}

type api struct {
	driver *driver.Driver
}

// NewRouter exposes the driver's session operations over HTTP.
func NewRouter(d *driver.Driver) *gin.Engine {
	a := &api{driver: d}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/public-key", a.publicKey)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Intentionally crash the process for testing
	r.POST("/setup-crash", setupCrash)

	g := r.Group("/game/:gameId")
	g.POST("", a.createGame)
	g.GET("", a.gameStatus)
	g.DELETE("", a.destroyGame)
	g.POST("/hand", a.playHand)
	g.POST("/start-hand", a.startHand)
	g.POST("/shuffle", a.shuffleAndDeal)
	g.POST("/hole-cards", a.storeHoleCards)
	g.GET("/hole-cards", a.holeCards)
	g.POST("/community", a.revealCommunity)
	g.POST("/end-hand", a.endHand)
	g.POST("/reveal-hand", a.revealHand)
	g.POST("/reveal-card", a.revealCard)
	return r
}

func RunRestServer(d *driver.Driver, addr string) error {
	restLogger.Info().Msgf("Starting rest server on %s", addr)
	return NewRouter(d).Run(addr)
}

func toCards(cards []uint8) []poker.Card {
	out := make([]poker.Card, len(cards))
	for i, c := range cards {
		out[i] = poker.Card(c)
	}
	return out
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, game.ErrAlreadyExists),
		errors.Is(err, game.ErrIllegalTransition),
		errors.Is(err, game.ErrNotYetRevealed),
		errors.Is(err, job.ErrAlreadyInFlight):
		return http.StatusConflict
	case errors.Is(err, game.ErrInvalidRevealCount),
		errors.Is(err, game.ErrInvalidHoleCardCount),
		errors.Is(err, poker.ErrInvalidSize),
		errors.Is(err, poker.ErrInvalidCard):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, job.ErrJobFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		restLogger.Error().Msgf("%s %s failed. Error: %v", c.Request.Method, c.FullPath(), err)
	} else {
		restLogger.Debug().Msgf("%s %s rejected. Error: %v", c.Request.Method, c.FullPath(), err)
	}
	c.Error(err)
	c.AbortWithStatusJSON(code, appError{
		Code:    code,
		Message: err.Error(),
	})
}

func gameIDParam(c *gin.Context) (uint64, bool) {
	gameID, err := strconv.ParseUint(c.Param("gameId"), 10, 64)
	if err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, appError{
			Code:    http.StatusBadRequest,
			Message: "invalid game id",
		})
		return 0, false
	}
	return gameID, true
}

// bindOptionalJSON accepts an empty body and leaves the target zero valued.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, appError{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return false
	}
	return true
}

func setupCrash(c *gin.Context) {
	type Payload struct {
		GameID     uint64 `json:"gameId"`
		CrashPoint string `json:"crashPoint"`
	}
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, appError{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return
	}

	restLogger.Info().Msgf("Received request to crash the server at [%s] game [%d]", payload.CrashPoint, payload.GameID)
	err := crashtest.Set(payload.GameID, crashtest.CrashPoint(payload.CrashPoint))
	if err != nil {
		code := http.StatusConflict
		if errors.Is(err, crashtest.ErrInvalidCrashPoint) {
			code = http.StatusBadRequest
		}
		c.Error(err)
		c.AbortWithStatusJSON(code, appError{
			Code:    code,
			Message: err.Error(),
		})
		return
	}
	c.Status(http.StatusOK)
}

func (a *api) publicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": a.driver.PublicKey().String()})
}

func (a *api) createGame(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Owner string `json:"owner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, appError{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return
	}
	restLogger.Info().Msgf("New game %d is received for %s", gameID, payload.Owner)
	if _, err := a.driver.CreateSession(gameID, payload.Owner); err != nil {
		abortWithError(c, err)
		return
	}
	a.writeStatus(c, http.StatusCreated, gameID)
}

func (a *api) gameStatus(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	a.writeStatus(c, http.StatusOK, gameID)
}

func (a *api) writeStatus(c *gin.Context, code int, gameID uint64) {
	session, record, err := a.driver.Snapshot(gameID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	community, err := record.RevealedCommunityCards()
	if err != nil && !errors.Is(err, game.ErrNotYetRevealed) {
		abortWithError(c, err)
		return
	}
	c.JSON(code, gameStatus{
		GameID:             session.GameID,
		Owner:              session.Owner,
		Phase:              session.Phase,
		HandNumber:         session.HandNumber,
		CommunityCards:     toCards(community),
		HoleCardsSize:      record.HoleCardsSize,
		CardsDealt:         record.CardsDealt,
		PlayerEncPublicKey: record.PlayerEncPublicKey.String(),
	})
}

func (a *api) destroyGame(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	owner := c.Query("owner")
	if err := a.driver.DestroySession(gameID, owner); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) playHand(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var plan driver.HandPlan
	if !bindOptionalJSON(c, &plan) {
		return
	}
	result, err := a.driver.PlayHand(c.Request.Context(), gameID, plan)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handResult{
		GameID:         result.GameID,
		HandNumber:     result.HandNumber,
		HoleCards:      toCards(result.HoleCards),
		CommunityCards: toCards(result.CommunityCards),
		RevealedHand:   toCards(result.RevealedHand),
		Phase:          result.Phase,
	})
}

func (a *api) startHand(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	if _, err := a.driver.StartHand(gameID); err != nil {
		abortWithError(c, err)
		return
	}
	a.writeStatus(c, http.StatusOK, gameID)
}

func (a *api) shuffleAndDeal(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	cards, err := a.driver.ShuffleAndDeal(c.Request.Context(), gameID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: toCards(cards)})
}

func (a *api) storeHoleCards(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Count uint8 `json:"count"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	cards, err := a.driver.StoreHoleCards(c.Request.Context(), gameID, payload.Count)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: toCards(cards)})
}

func (a *api) holeCards(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	cards, err := a.driver.HoleCards(gameID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: toCards(cards)})
}

func (a *api) revealCommunity(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Count uint8 `json:"count"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	cards, err := a.driver.RevealCommunity(c.Request.Context(), gameID, payload.Count)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: toCards(cards)})
}

func (a *api) endHand(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		ChangeHand bool `json:"changeHand"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	if _, err := a.driver.EndHand(c.Request.Context(), gameID, payload.ChangeHand); err != nil {
		abortWithError(c, err)
		return
	}
	a.writeStatus(c, http.StatusOK, gameID)
}

func (a *api) revealHand(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	cards, err := a.driver.RevealHand(c.Request.Context(), gameID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: toCards(cards)})
}

func (a *api) revealCard(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload struct {
		Index uint8 `json:"index"`
	}
	if !bindOptionalJSON(c, &payload) {
		return
	}
	card, err := a.driver.RevealCard(c.Request.Context(), gameID, payload.Index)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cardsResponse{GameID: gameID, Cards: []poker.Card{poker.Card(card)}})
}
