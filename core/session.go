package core

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog"

	utils "ogameapi/utils"
)

// ErrChallengeRequired is the last error when the attempts ran out right after a solved challenge.
var ErrChallengeRequired = errors.New("gameforge asked for a challenge")

type ChallengeSolver interface {
	Solve(ctx context.Context, challengeID string) (ChallengeResult, error)
}

type BlackboxSource interface {
	Blackbox() (string, error)
}

type LoginStats struct {
	Attempts      int
	Challenges    int
	Rounds        int
	LowConfidence int
}

// SessionManager owns one account's Session. Separate accounts need separate managers.
type SessionManager struct {
	Doer        utils.HttpDoer
	Cookies     utils.CookieSetter
	Preset      utils.GamePreset
	Credentials utils.Credentials
	AuthURL     string
	Blackbox    BlackboxSource
	Challenges  ChallengeSolver
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Log         zerolog.Logger

	mu      sync.Mutex
	session utils.Session
	stats   LoginStats
	sleep   func(ctx context.Context, d time.Duration) error
}

func (m *SessionManager) Session() utils.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *SessionManager) Stats() LoginStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Adopt takes over a token obtained earlier, e.g. from the token store.
func (m *SessionManager) Adopt(token string) utils.Session {
	m.mu.Lock()
	m.session = m.session.WithToken(token)
	session := m.session
	m.mu.Unlock()

	m.mirrorCookie(token)
	return session
}

// Backoff is the wait before attempt n, n starting at 2.
func (m *SessionManager) Backoff(attempt int) time.Duration {
	if attempt < 2 || m.BackoffBase <= 0 {
		return 0
	}
	d := m.BackoffBase
	for i := 2; i < attempt; i++ {
		d *= 2
		if m.BackoffMax > 0 && d >= m.BackoffMax {
			return m.BackoffMax
		}
	}
	if m.BackoffMax > 0 && d > m.BackoffMax {
		return m.BackoffMax
	}
	return d
}

// Login submits the credentials until gameforge issues a token.
// A 409 runs the challenge loop and resubmits right away, network failures and
// unsolvable challenges back off first. Everything else is returned as is.
func (m *SessionManager) Login(ctx context.Context) (utils.Session, error) {
	maxAttempts := m.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last error
	backoff := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if backoff {
			if err := m.wait(ctx, m.Backoff(attempt)); err != nil {
				return utils.Session{}, err
			}
		}

		m.mu.Lock()
		m.stats.Attempts++
		m.mu.Unlock()

		token, challengeID, err := m.submit(ctx)
		switch {
		case err == nil && challengeID == "":
			m.Log.Info().Int("attempt", attempt).Msg("login ok")
			return m.Adopt(token), nil

		case err == nil:
			m.Log.Info().Str("challenge", challengeID).Msg("login requires a challenge")
			result, err := m.Challenges.Solve(ctx, challengeID)
			m.recordChallenge(result)
			if err == nil {
				last = ErrChallengeRequired
				backoff = false
				continue
			}
			if !retryable(err) {
				return utils.Session{}, err
			}
			last = err

		case retryable(err):
			last = err

		default:
			return utils.Session{}, err
		}

		m.Log.Warn().Err(last).Int("attempt", attempt).Msg("login attempt failed")
		backoff = true
	}

	return utils.Session{}, &LoginAttemptsExhausted{Attempts: maxAttempts, Last: last}
}

// submit posts the credentials once. It returns either a token or a challenge id.
func (m *SessionManager) submit(ctx context.Context) (string, string, error) {
	blackbox, err := m.Blackbox.Blackbox()
	if err != nil {
		return "", "", err
	}

	payload := utils.LoginRequest{
		Identity:          m.Credentials.Identity,
		Password:          m.Credentials.Password,
		Locale:            m.Preset.Locale,
		GfLang:            m.Preset.GfLang,
		PlatformGameID:    m.Preset.PlatformGameID,
		GameEnvironmentID: m.Preset.GameEnvironmentID,
		Blackbox:          "tra:" + blackbox,
	}

	req, err := newJSONRequest(ctx, fhttp.MethodPost, m.AuthURL, payload)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("origin", m.Preset.LobbyURL)
	req.Header.Set("referer", m.Preset.LobbyURL+"/")

	resp, body, err := send(ctx, m.Doer, "login", req)
	if err != nil {
		return "", "", err
	}

	switch resp.StatusCode {
	case fhttp.StatusCreated:
		var login utils.LoginResponse
		if err := decodeJSON("login", body, &login); err != nil {
			return "", "", err
		}
		if login.Token == "" {
			return "", "", protocolError("login", "missing token", nil)
		}
		return login.Token, "", nil

	case fhttp.StatusConflict:
		id, err := ParseChallengeID(resp.Header.Get("gf-challenge-id"))
		if err != nil {
			return "", "", err
		}
		return "", id, nil

	default:
		return "", "", &AuthenticationRejected{
			StatusCode: resp.StatusCode,
			Body:       utils.Truncate(string(body), 256),
		}
	}
}

func (m *SessionManager) recordChallenge(result ChallengeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Challenges++
	m.stats.Rounds += result.Rounds
	m.stats.LowConfidence += result.LowConfidence
}

func (m *SessionManager) mirrorCookie(token string) {
	if m.Cookies == nil {
		return
	}
	for _, target := range []string{"https://gameforge.com", m.Preset.LobbyURL} {
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			continue
		}
		m.Cookies.SetCookies(u, []*fhttp.Cookie{{
			Name:   utils.TokenCookie,
			Value:  token,
			Path:   "/",
			Domain: ".gameforge.com",
		}})
	}
}

func (m *SessionManager) wait(ctx context.Context, d time.Duration) error {
	if m.sleep != nil {
		return m.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
