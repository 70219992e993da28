package cluster

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/poker"
	"cardshuffler.com/server/util/random"
)

var localLogger = log.With().Str("logger_name", "cluster::local").Logger()

var ErrDuplicateOffset = errors.New("offset already executed")

const executedCacheSize = 10000

// LocalCluster runs jobs in process. It holds its own key pair and a sealing
// key for deck commitments, so plaintext decks never leave it.
type LocalCluster struct {
	keys     *encryption.KeyPair
	sealKey  []byte
	executed *lru.Cache

	lock     sync.Mutex
	handler  CompletionHandler
	delays   map[game.JobKind]time.Duration
	failNext map[game.JobKind]int
	dropNext map[game.JobKind]int
	running  sync.WaitGroup
}

func NewLocalCluster() (*LocalCluster, error) {
	keys, err := encryption.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	sealKey := make([]byte, encryption.KeySize)
	if _, err := io.ReadFull(rand.Reader, sealKey); err != nil {
		return nil, errors.Wrap(err, "Unable to generate sealing key")
	}
	executed, err := lru.New(executedCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create executed offset cache")
	}
	return &LocalCluster{
		keys:     keys,
		sealKey:  sealKey,
		executed: executed,
		delays:   make(map[game.JobKind]time.Duration),
		failNext: make(map[game.JobKind]int),
		dropNext: make(map[game.JobKind]int),
	}, nil
}

func (c *LocalCluster) PublicKey() encryption.PublicKey {
	return c.keys.Public
}

func (c *LocalCluster) OnCompletion(handler CompletionHandler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.handler = handler
}

// SetDelay holds completions of kind for d before reporting them.
func (c *LocalCluster) SetDelay(kind game.JobKind, d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.delays[kind] = d
}

// FailNext reports the next n jobs of kind as failed.
func (c *LocalCluster) FailNext(kind game.JobKind, n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.failNext[kind] = n
}

// DropNext executes the next n jobs of kind without ever reporting them.
func (c *LocalCluster) DropNext(kind game.JobKind, n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.dropNext[kind] = n
}

// Wait blocks until every submitted job has reported.
func (c *LocalCluster) Wait() {
	c.running.Wait()
}

func (c *LocalCluster) Submit(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.lock.Lock()
	if c.executed.Contains(req.Offset) {
		c.lock.Unlock()
		return errors.Wrapf(ErrDuplicateOffset, "offset %d", req.Offset)
	}
	c.executed.Add(req.Offset, req.GameID)
	delay := c.delays[req.Kind]
	fail := c.take(c.failNext, req.Kind)
	drop := c.take(c.dropNext, req.Kind)
	c.lock.Unlock()

	c.running.Add(1)
	go func() {
		defer c.running.Done()
		c.run(req, delay, fail, drop)
	}()
	return nil
}

func (c *LocalCluster) take(counts map[game.JobKind]int, kind game.JobKind) bool {
	if counts[kind] > 0 {
		counts[kind]--
		return true
	}
	return false
}

func (c *LocalCluster) run(req Request, delay time.Duration, fail bool, drop bool) {
	defer func() {
		if err := recover(); err != nil {
			localLogger.Error().
				Uint64(logging.OffsetKey, req.Offset).
				Msgf("Panic while executing %s: %v", req.Kind, err)
		}
	}()

	c.report(Completion{Offset: req.Offset, GameID: req.GameID, Kind: req.Kind, Status: job.StatusExecuting})

	output, err := c.Execute(req)
	if delay > 0 {
		time.Sleep(delay)
	}
	if drop {
		localLogger.Debug().Uint64(logging.OffsetKey, req.Offset).Msg("Dropping completion")
		return
	}

	completion := Completion{Offset: req.Offset, GameID: req.GameID, Kind: req.Kind}
	switch {
	case fail:
		completion.Status = job.StatusFailed
		completion.Error = "computation aborted"
	case err != nil:
		completion.Status = job.StatusFailed
		completion.Error = err.Error()
	default:
		completion.Status = job.StatusFinalized
		completion.Output = output
	}
	c.report(completion)
}

func (c *LocalCluster) report(completion Completion) {
	c.lock.Lock()
	handler := c.handler
	c.lock.Unlock()
	if handler == nil {
		localLogger.Warn().Uint64(logging.OffsetKey, completion.Offset).Msg("No completion handler registered")
		return
	}
	handler(completion)
}

// Execute runs one job synchronously and returns its output.
func (c *LocalCluster) Execute(req Request) (*game.Output, error) {
	in := req.Inputs
	playerKey, err := encryption.ParsePublicKey(in.PlayerPublicKey)
	if err != nil {
		return nil, err
	}
	sessionKey, err := c.keys.DeriveSessionKey(playerKey)
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case game.JobShuffleAndDeal:
		deck := poker.NewDeck(nil)
		cards, err := deck.Draw(int(in.NumCards))
		if err != nil {
			return nil, err
		}
		commitment, err := encryption.Encrypt(deck.GetBytes(), c.sealKey)
		if err != nil {
			return nil, err
		}
		output, err := c.encryptHand(sessionKey, cards)
		if err != nil {
			return nil, err
		}
		output.DeckCommitment = commitment
		output.CardsDealt = uint8(deck.Dealt())
		return output, nil

	case game.JobStoreHoleCards:
		deck, err := c.openDeck(in)
		if err != nil {
			return nil, err
		}
		hand, err := c.openHand(sessionKey, in)
		if err != nil {
			return nil, err
		}
		if len(hand)+int(in.NumCards) > poker.MaxHandSize {
			return nil, errors.Wrapf(poker.ErrInvalidSize, "hand of %d cannot take %d more", len(hand), in.NumCards)
		}
		cards, err := deck.Draw(int(in.NumCards))
		if err != nil {
			return nil, err
		}
		output, err := c.encryptHand(sessionKey, append(hand, cards...))
		if err != nil {
			return nil, err
		}
		output.CardsDealt = uint8(deck.Dealt())
		return output, nil

	case game.JobRevealCommunity:
		deck, err := c.openDeck(in)
		if err != nil {
			return nil, err
		}
		cards, err := deck.Draw(int(in.NumCards))
		if err != nil {
			return nil, err
		}
		return &game.Output{CommunityCards: cards, CardsDealt: uint8(deck.Dealt())}, nil

	case game.JobChangeHand:
		return c.encryptHand(sessionKey, nil)

	case game.JobRevealSingleCard:
		deck, err := c.openDeck(in)
		if err != nil {
			return nil, err
		}
		card, err := deck.Peek(int(in.CardIndex))
		if err != nil {
			return nil, err
		}
		return &game.Output{CardIndex: in.CardIndex, Card: card, CardsDealt: in.CardsDealt}, nil

	case game.JobRevealHand:
		hand, err := c.openHand(sessionKey, in)
		if err != nil {
			return nil, err
		}
		return &game.Output{Cards: hand, HoleCardsSize: in.HoleCardsSize, CardsDealt: in.CardsDealt}, nil
	}
	return nil, errors.Errorf("unknown job kind %s", req.Kind)
}

func (c *LocalCluster) openDeck(in game.Inputs) (*poker.Deck, error) {
	b, err := encryption.Decrypt(in.DeckCommitment, c.sealKey)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open deck commitment")
	}
	deck, err := poker.DeckFromBytes(b)
	if err != nil {
		return nil, err
	}
	if err := deck.SetDealt(int(in.CardsDealt)); err != nil {
		return nil, err
	}
	return deck, nil
}

func (c *LocalCluster) openHand(key encryption.SessionKey, in game.Inputs) ([]uint8, error) {
	if in.HoleCardsSize == 0 {
		return []uint8{}, nil
	}
	var nonce encryption.Nonce
	if len(in.HoleCardsNonce) != encryption.NonceSize {
		return nil, errors.Wrapf(encryption.ErrAuthenticationFailed, "nonce is %d bytes", len(in.HoleCardsNonce))
	}
	copy(nonce[:], in.HoleCardsNonce)
	packed, err := encryption.DecryptHand(key, nonce, in.HoleCardsCipher)
	if err != nil {
		return nil, err
	}
	return poker.Unpack(packed, in.HoleCardsSize)
}

// encryptHand packs and encrypts cards under a fresh nonce.
func (c *LocalCluster) encryptHand(key encryption.SessionKey, cards []uint8) (*game.Output, error) {
	packed, err := poker.Pack(cards)
	if err != nil {
		return nil, err
	}
	nonce, err := random.Bytes16()
	if err != nil {
		return nil, err
	}
	cipher, err := encryption.EncryptHand(key, nonce, packed)
	if err != nil {
		return nil, err
	}
	return &game.Output{
		HoleCardsCipher: cipher,
		HoleCardsNonce:  nonce[:],
		HoleCardsSize:   uint8(len(cards)),
	}, nil
}
