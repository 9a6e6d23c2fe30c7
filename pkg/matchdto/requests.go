package matchdto

type CreateMatchRequest struct {
	// PlayWhite picks the host's color for the whole match.
	PlayWhite bool `json:"play_white"`
	// JoinSecret, when non-empty, must be echoed by the joining player.
	JoinSecret string `json:"join_secret,omitempty"`
}

type CreateMatchResponse struct {
	MatchID     string `json:"match_id"`
	PlayerToken string `json:"player_token"`
	PlayWhite   bool   `json:"play_white"`
	Status      string `json:"status"`
}

type JoinMatchRequest struct {
	JoinSecret string `json:"join_secret,omitempty"`
}

type JoinMatchResponse struct {
	MatchID     string `json:"match_id"`
	PlayerToken string `json:"player_token"`
	PlayWhite   bool   `json:"play_white"`
	Status      string `json:"status"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MoveResponse reports both accepted and rejected moves with status 200;
// OK distinguishes them so the polling client can re-prompt without
// treating a slip of the finger as a transport failure.
type MoveResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	FEN    string `json:"fen,omitempty"`
	Ply    int    `json:"ply,omitempty"`
	Status string `json:"status,omitempty"`
}

type CheckInResponse struct {
	Status             string `json:"status"`
	Winner             string `json:"winner,omitempty"`
	YourTurn           bool   `json:"your_turn"`
	DidWin             bool   `json:"did_win"`
	DidDraw            bool   `json:"did_draw"`
	OpponentSecondsAgo int64  `json:"opponent_seconds_ago"`
	OpponentOffline    bool   `json:"opponent_offline"`
	FEN                string `json:"fen"`
}

type StatusResponse struct {
	MatchID string `json:"match_id"`
	Status  string `json:"status"`
}

type ResignResponse struct {
	Status string `json:"status"`
}

type CancelResponse struct {
	Status string `json:"status"`
}
