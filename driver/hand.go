package driver

import (
	"context"

	"github.com/pkg/errors"

	"cardshuffler.com/server/game"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/poker"
	"cardshuffler.com/server/util"
)

// HandPlan describes the optional steps of one hand.
type HandPlan struct {
	// StoreHoleCards deals extra hole cards after the initial deal, one
	// store job per entry.
	StoreHoleCards []uint8 `json:"storeHoleCards,omitempty"`
	RevealHand     bool    `json:"revealHand,omitempty"`
	ChangeHand     bool    `json:"changeHand,omitempty"`
}

type HandResult struct {
	GameID         uint64     `json:"gameId"`
	HandNumber     uint32     `json:"handNumber"`
	HoleCards      []uint8    `json:"holeCards"`
	CommunityCards []uint8    `json:"communityCards"`
	RevealedHand   []uint8    `json:"revealedHand,omitempty"`
	Phase          game.Phase `json:"phase"`
}

// PlayHand drives one hand from WaitingToShuffle back to WaitingToShuffle.
func (d *Driver) PlayHand(ctx context.Context, gameID uint64, plan HandPlan) (*HandResult, error) {
	session, err := d.StartHand(gameID)
	if err != nil {
		return nil, err
	}
	result := &HandResult{GameID: gameID, HandNumber: session.HandNumber}

	result.HoleCards, err = d.ShuffleAndDeal(ctx, gameID)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to deal hand %d", session.HandNumber)
	}
	for _, n := range plan.StoreHoleCards {
		result.HoleCards, err = d.StoreHoleCards(ctx, gameID, n)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to store %d hole cards", n)
		}
	}

	for _, phase := range []game.Phase{game.PhaseHoleCardsDealt, game.PhaseFlop, game.PhaseTurn} {
		n := uint8(game.RequiredRevealCount(phase))
		result.CommunityCards, err = d.RevealCommunity(ctx, gameID, n)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to reveal community cards from %s", phase)
		}
	}

	if plan.RevealHand {
		result.RevealedHand, err = d.RevealHand(ctx, gameID)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to reveal hand")
		}
	}

	session, err = d.EndHand(ctx, gameID, plan.ChangeHand)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to end hand")
	}
	result.Phase = session.Phase
	util.Metrics.HandPlayed()

	driverLogger.Info().
		Uint64(logging.GameIDKey, gameID).
		Uint32(logging.HandNumKey, result.HandNumber).
		Msgf("Hand played. Community: %s", poker.CardsToString(result.CommunityCards))
	return result, nil
}
