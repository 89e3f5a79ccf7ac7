package utils

import (
	fhttp "github.com/bogdanfinn/fhttp"
)

// HttpDoer is the part of tls_client.HttpClient the core needs.
type HttpDoer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
}

const TokenCookie = "gf-token-production"

// Login Data
type Credentials struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Identity                string `json:"identity"`
	Password                string `json:"password"`
	Locale                  string `json:"locale"`
	GfLang                  string `json:"gfLang"`
	PlatformGameID          string `json:"platformGameId"`
	GameEnvironmentID       string `json:"gameEnvironmentId"`
	AutoGameAccountCreation bool   `json:"autoGameAccountCreation"`
	Blackbox                string `json:"blackbox"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Session is handed out by value; only the session manager replaces it.
type Session struct {
	BearerToken  string            `json:"token"`
	Cookies      map[string]string `json:"cookies"`
	ServerNumber int               `json:"server_number"`
	Language     string            `json:"language"`
	ServerID     int               `json:"server_id"`
	PlayerID     int               `json:"player_id"`
	PlayerName   string            `json:"player_name"`
}

// WithToken returns a copy holding only the new token, the old one is dropped.
func (s Session) WithToken(token string) Session {
	s.BearerToken = token
	s.Cookies = map[string]string{TokenCookie: token}
	return s
}

func (s Session) Authenticated() bool {
	return s.BearerToken != ""
}

// Challenge Data
// LastUpdated is nil when the reply did not carry it.
type ChallengeInit struct {
	LastUpdated *int64 `json:"lastUpdated"`
}

type AnswerRequest struct {
	Answer int `json:"answer"`
}

type ChallengeStatus struct {
	Status      string `json:"status"`
	LastUpdated *int64 `json:"lastUpdated"`
}

const (
	StatusPresented = "presented"
	StatusSolved    = "solved"
)

// Lobby Data
type Server struct {
	Number   int    `json:"number"`
	Language string `json:"language"`
	Name     string `json:"name"`
}

type AccountServer struct {
	Number   int    `json:"number"`
	Language string `json:"language"`
}

type Account struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Server AccountServer `json:"server"`
}

type LoginLinkRequest struct {
	ID            int           `json:"id"`
	Server        AccountServer `json:"server"`
	ClickedButton string        `json:"clickedButton"`
	Blackbox      string        `json:"blackbox"`
}

type LoginLinkResponse struct {
	URL string `json:"url"`
}
