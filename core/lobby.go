package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog"

	utils "ogameapi/utils"
)

var ErrNotLoggedIn = errors.New("token is not logged in")

// Lobby talks to the ogame lobby of one preset.
type Lobby struct {
	Doer   utils.HttpDoer
	Preset utils.GamePreset
	Log    zerolog.Logger
}

func (l *Lobby) url(path string) string {
	return strings.TrimRight(l.Preset.LobbyURL, "/") + path
}

func (l *Lobby) get(ctx context.Context, op, reqURL string, session utils.Session) ([]byte, error) {
	req, err := newRequest(ctx, fhttp.MethodGet, reqURL, nil, "application/json")
	if err != nil {
		return nil, err
	}
	authorize(req, session)

	resp, body, err := send(ctx, l.Doer, op, req)
	if err != nil {
		return nil, err
	}
	if err := expectOK(op, resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Warmup loads the lobby front page so the platform cookies exist before login.
func (l *Lobby) Warmup(ctx context.Context) error {
	req, err := newRequest(ctx, fhttp.MethodGet, l.url("/"), nil, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return err
	}
	_, _, err = send(ctx, l.Doer, "lobby warmup", req)
	return err
}

func (l *Lobby) Servers(ctx context.Context) ([]utils.Server, error) {
	body, err := l.get(ctx, "servers", l.url("/api/servers"), utils.Session{})
	if err != nil {
		return nil, err
	}

	var servers []utils.Server
	if err := decodeJSON("servers", body, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// Accounts lists the game accounts of the session. A rejected token gives ErrNotLoggedIn.
func (l *Lobby) Accounts(ctx context.Context, session utils.Session) ([]utils.Account, error) {
	body, err := l.get(ctx, "accounts", l.url("/api/users/me/accounts"), session)
	if err != nil {
		var protocol *ProtocolFormatError
		if errors.As(err, &protocol) && protocol.StatusCode == fhttp.StatusUnauthorized {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var failure struct {
			Error interface{} `json:"error"`
		}
		if err := decodeJSON("accounts", trimmed, &failure); err != nil {
			return nil, err
		}
		if failure.Error != nil {
			return nil, ErrNotLoggedIn
		}
		return nil, protocolError("accounts", "expected a list of accounts", nil)
	}

	var accounts []utils.Account
	if err := decodeJSON("accounts", body, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (l *Lobby) IsLoggedIn(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := l.Accounts(ctx, utils.Session{}.WithToken(token))
	if errors.Is(err, ErrNotLoggedIn) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveUniverse finds the server called universe and the account on it.
// A server in the requested language wins over the first one with that name.
func (l *Lobby) ResolveUniverse(ctx context.Context, session utils.Session, universe, language string) (utils.Session, error) {
	servers, err := l.Servers(ctx)
	if err != nil {
		return session, err
	}

	var match *utils.Server
	for i := range servers {
		if !strings.EqualFold(servers[i].Name, universe) {
			continue
		}
		if language == "" || servers[i].Language == language {
			match = &servers[i]
			break
		}
		if match == nil {
			match = &servers[i]
		}
	}
	if match == nil {
		return session, protocolError("resolve universe", fmt.Sprintf("universe %q not found", universe), nil)
	}
	if language == "" || l.Preset.Pioneer {
		language = match.Language
	}

	accounts, err := l.Accounts(ctx, session)
	if err != nil {
		return session, err
	}
	for _, account := range accounts {
		if account.Server.Number == match.Number && account.Server.Language == language {
			session.ServerNumber = match.Number
			session.Language = language
			session.ServerID = account.ID
			return session, nil
		}
	}
	return session, protocolError("resolve universe", fmt.Sprintf("no account on %s (s%d-%s)", match.Name, match.Number, language), nil)
}

// LoginLink asks the lobby for a one time link into the game server.
func (l *Lobby) LoginLink(ctx context.Context, session utils.Session, blackbox string) (string, error) {
	payload := utils.LoginLinkRequest{
		ID: session.ServerID,
		Server: utils.AccountServer{
			Number:   session.ServerNumber,
			Language: session.Language,
		},
		ClickedButton: "quick_join",
		Blackbox:      "tra:" + blackbox,
	}

	req, err := newJSONRequest(ctx, fhttp.MethodPost, l.url("/api/users/me/loginLink"), payload)
	if err != nil {
		return "", err
	}
	authorize(req, session)

	resp, body, err := send(ctx, l.Doer, "login link", req)
	if err != nil {
		return "", err
	}
	if err := expectOK("login link", resp, body); err != nil {
		return "", err
	}

	var link utils.LoginLinkResponse
	if err := decodeJSON("login link", body, &link); err != nil {
		return "", err
	}
	if link.URL == "" {
		return "", protocolError("login link", "missing url", nil)
	}
	return link.URL, nil
}

// Enter follows the login link and reads the player from the ingame page.
func (l *Lobby) Enter(ctx context.Context, session utils.Session, link string) (utils.Session, error) {
	req, err := newRequest(ctx, fhttp.MethodGet, link, nil, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return session, err
	}
	if _, _, err := send(ctx, l.Doer, "enter", req); err != nil {
		return session, err
	}

	req, err = newRequest(ctx, fhttp.MethodGet, utils.IndexURL(session.ServerNumber, session.Language)+"page=ingame", nil, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return session, err
	}
	resp, body, err := send(ctx, l.Doer, "ingame", req)
	if err != nil {
		return session, err
	}
	if err := expectOK("ingame", resp, body); err != nil {
		return session, err
	}

	meta := utils.FindMeta(body, "ogame-player-id", "ogame-player-name")
	id, err := strconv.Atoi(meta["ogame-player-id"])
	if err != nil {
		return session, protocolError("ingame", "missing ogame-player-id", err)
	}
	session.PlayerID = id
	session.PlayerName = meta["ogame-player-name"]
	return session, nil
}

func (l *Lobby) Logout(ctx context.Context, session utils.Session) error {
	req, err := newRequest(ctx, fhttp.MethodPut, l.url("/api/users/me/logout"), nil, "application/json")
	if err != nil {
		return err
	}
	authorize(req, session)

	resp, body, err := send(ctx, l.Doer, "logout", req)
	if err != nil {
		return err
	}
	return expectOK("logout", resp, body)
}
