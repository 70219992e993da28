package game

// Session is the player-visible state of one confidential game.
type Session struct {
	GameID     uint64 `json:"gameId"`
	Owner      string `json:"owner"`
	Phase      Phase  `json:"phase"`
	HandNumber uint32 `json:"handNumber"`
}

func NewSession(gameID uint64, owner string) *Session {
	return &Session{
		GameID: gameID,
		Owner:  owner,
		Phase:  PhaseWaitingToShuffle,
	}
}

func (s *Session) Machine() *PhaseMachine {
	return NewPhaseMachine(s.Phase)
}

func (s *Session) Clone() *Session {
	c := *s
	return &c
}
