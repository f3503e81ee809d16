package models

// MatchRequest defines the structure for a matchmaking request.
type MatchRequest struct {
	Username       string `json:"username" binding:"required,min=1,max=64"`
	CredentialHash string `json:"credential_hash" binding:"required"`
}

// MatchReply carries the coordinates of the match a player was assigned to.
type MatchReply struct {
	Username string  `json:"username"`
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	AuthKey  string  `json:"auth_key"`
	Rating   float64 `json:"rating"`
}

// PlayerReply is one player's public ranking record.
type PlayerReply struct {
	Username string  `json:"username"`
	Mu       float64 `json:"mu"`
	Sigma    float64 `json:"sigma"`
	LoggedIn bool    `json:"logged_in"`
}

// StatusReply is a snapshot of scheduler occupancy.
type StatusReply struct {
	Environment    string `json:"environment"`
	PlayersPerGame int    `json:"players_per_game"`
	QueueDepth     int    `json:"queue_depth"`
	ActiveMatches  int    `json:"active_matches"`
	FreePorts      int    `json:"free_ports"`
	MatchesTotal   int64  `json:"matches_total"`
}
