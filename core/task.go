package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ogameapi/config"
	"ogameapi/store"
	utils "ogameapi/utils"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Environment holds what every login task shares. Only the label table inside
// Answers and the counters are shared state.
type Environment struct {
	Config    *config.Config
	Answers   AnswerSource
	Tokens    store.TokenStore
	Timezones *TimezoneResolver
	Log       zerolog.Logger

	// NewClient is replaced in tests.
	NewClient func(opts utils.ClientOptions) (HTTPClient, error)

	completed     atomic.Int64
	failed        atomic.Int64
	rounds        atomic.Int64
	lowConfidence atomic.Int64
}

type EnvironmentStats struct {
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Rounds        int64 `json:"captcha_rounds"`
	LowConfidence int64 `json:"low_confidence"`
}

func (env *Environment) Stats() EnvironmentStats {
	return EnvironmentStats{
		Completed:     env.completed.Load(),
		Failed:        env.failed.Load(),
		Rounds:        env.rounds.Load(),
		LowConfidence: env.lowConfidence.Load(),
	}
}

func (env *Environment) client(proxy string) (HTTPClient, error) {
	opts := utils.ClientOptions{
		Proxy:   proxy,
		Timeout: env.Config.HTTP.Timeout,
		Profile: env.Config.HTTP.Profile,
		JA3:     env.Config.HTTP.JA3,
	}
	if env.NewClient != nil {
		return env.NewClient(opts)
	}
	return utils.NewClient(opts)
}

type TaskRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Universe string `json:"universe"`
	Language string `json:"language"`
	Preset   string `json:"preset"`
	Proxy    string `json:"proxy"`
}

// LoginTask logs one account into one universe.
type LoginTask struct {
	// Manage
	ID     string
	Status string

	// Request
	Preset      utils.GamePreset
	Credentials utils.Credentials
	Universe    string
	Language    string
	Proxy       string

	// Result
	Session       utils.Session
	Rounds        int
	LowConfidence int
	ProcessTime   float64
	ErrorReason   string
	Err           error

	env *Environment
	log zerolog.Logger
	mu  sync.RWMutex
	// progress reads the session manager counters, set once login built one
	progress func() LoginStats
}

// TaskView is a consistent copy of a task, safe to read while it runs.
type TaskView struct {
	ID            string
	Status        string
	Preset        string
	Universe      string
	Session       utils.Session
	Rounds        int
	LowConfidence int
	ProcessTime   float64
	ErrorReason   string
}

func (task *LoginTask) View() TaskView {
	task.mu.RLock()
	defer task.mu.RUnlock()
	return TaskView{
		ID:            task.ID,
		Status:        task.Status,
		Preset:        task.Preset.Name,
		Universe:      task.Universe,
		Session:       task.Session,
		Rounds:        task.Rounds,
		LowConfidence: task.LowConfidence,
		ProcessTime:   task.ProcessTime,
		ErrorReason:   task.ErrorReason,
	}
}

func NewLoginTask(env *Environment, req TaskRequest) (*LoginTask, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}
	if strings.TrimSpace(req.Universe) == "" {
		return nil, errors.New("universe is required")
	}

	preset, err := utils.FindPreset(req.Preset)
	if err != nil {
		return nil, err
	}

	proxy := req.Proxy
	if proxy == "" {
		proxy = env.Config.Proxy
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return &LoginTask{
		ID:          id,
		Status:      StatusProcessing,
		Preset:      preset,
		Credentials: utils.Credentials{Identity: req.Username, Password: req.Password},
		Universe:    req.Universe,
		Language:    req.Language,
		Proxy:       proxy,
		env:         env,
		log:         env.Log.With().Str("task", id).Str("preset", preset.Name).Logger(),
	}, nil
}

// Run performs the whole login and records the outcome on the task.
func (task *LoginTask) Run(ctx context.Context) (err error) {
	start := time.Now()
	var (
		session utils.Session
		stats   LoginStats
		reason  string
	)
	defer func() {
		if task.progress != nil {
			stats = task.progress()
		}
		if r := recover(); r != nil {
			task.log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("login task panicked")
			err = fmt.Errorf("unexpected error - %v", r)
			reason = "unexpected error"
		} else if err != nil {
			reason = ErrorReason(err)
		}
		task.finish(session, stats, err, reason, time.Since(start))
	}()

	session, err = task.login(ctx)
	return err
}

func (task *LoginTask) login(ctx context.Context) (session utils.Session, err error) {
	cfg := task.env.Config

	client, err := task.env.client(task.Proxy)
	if err != nil {
		return session, err
	}

	timezone := cfg.Fingerprint.Timezone
	if task.env.Timezones != nil {
		timezone = task.env.Timezones.Resolve(ctx, client)
	}
	blackbox := NewBlackboxGenerator(DefaultDescriptor(timezone, cfg.Fingerprint.Language))

	lobby := &Lobby{Doer: client, Preset: task.Preset, Log: task.log}
	manager := &SessionManager{
		Doer:        client,
		Cookies:     client,
		Preset:      task.Preset,
		Credentials: task.Credentials,
		AuthURL:     cfg.Auth.URL,
		Blackbox:    blackbox,
		Challenges: &ChallengeLoop{
			Doer:         client,
			ChallengeURL: cfg.Challenge.URL,
			ImageDropURL: cfg.Challenge.ImageDropURL,
			Locale:       cfg.Challenge.Locale,
			MaxRounds:    cfg.Challenge.MaxRounds,
			Answers:      task.env.Answers,
			Log:          task.log,
		},
		MaxAttempts: cfg.Login.MaxAttempts,
		BackoffBase: cfg.Login.BackoffBase,
		BackoffMax:  cfg.Login.BackoffMax,
		Log:         task.log,
	}
	task.progress = manager.Stats

	if err = lobby.Warmup(ctx); err != nil {
		return session, err
	}

	if session, err = task.authenticate(ctx, lobby, manager); err != nil {
		return session, err
	}

	if session, err = lobby.ResolveUniverse(ctx, session, task.Universe, task.Language); err != nil {
		return session, err
	}

	token, err := blackbox.Blackbox()
	if err != nil {
		return session, err
	}
	link, err := lobby.LoginLink(ctx, session, token)
	if err != nil {
		return session, err
	}

	session, err = lobby.Enter(ctx, session, link)
	return session, err
}

// authenticate reuses a stored token while the lobby still accepts it.
func (task *LoginTask) authenticate(ctx context.Context, lobby *Lobby, manager *SessionManager) (utils.Session, error) {
	key := store.Key(task.Preset.Name, task.Credentials.Identity)
	tokens := task.env.Tokens
	if tokens == nil {
		tokens = store.Nop{}
	}

	if token, err := tokens.Load(ctx, key); err == nil {
		ok, err := lobby.IsLoggedIn(ctx, token)
		if err != nil {
			return utils.Session{}, err
		}
		if ok {
			task.log.Info().Msg("reusing stored token")
			return manager.Adopt(token), nil
		}
		task.log.Info().Msg("stored token expired")
	} else if !errors.Is(err, store.ErrNotFound) {
		task.log.Warn().Err(err).Msg("failed to load stored token")
	}

	session, err := manager.Login(ctx)
	if err != nil {
		return utils.Session{}, err
	}
	if err := tokens.Save(ctx, key, session.BearerToken); err != nil {
		task.log.Warn().Err(err).Msg("failed to store token")
	}
	return session, nil
}

func (task *LoginTask) finish(session utils.Session, stats LoginStats, err error, reason string, elapsed time.Duration) {
	task.mu.Lock()
	task.Session = session
	task.Rounds = stats.Rounds
	task.LowConfidence = stats.LowConfidence
	task.ProcessTime = elapsed.Seconds()
	task.Err = err
	task.ErrorReason = reason
	if err != nil {
		task.Status = StatusError
	} else {
		task.Status = StatusCompleted
	}
	task.mu.Unlock()

	task.env.rounds.Add(int64(stats.Rounds))
	task.env.lowConfidence.Add(int64(stats.LowConfidence))

	event := task.log.Info()
	if err != nil {
		task.env.failed.Add(1)
		event = task.log.Error().Err(err).Str("reason", reason)
	} else {
		task.env.completed.Add(1)
	}

	event.
		Str("universe", task.Universe).
		Int("rounds", stats.Rounds).
		Int("low_confidence", stats.LowConfidence).
		Str("time", fmt.Sprintf("%.2fs", elapsed.Seconds())).
		Msg("login task finished")
}

// ErrorReason is the short text the API reports for a failed task.
func ErrorReason(err error) string {
	var (
		network    *NetworkError
		protocol   *ProtocolFormatError
		rejected   *AuthenticationRejected
		unsolvable *CaptchaUnsolvable
		exhausted  *LoginAttemptsExhausted
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout reached"
	case errors.Is(err, context.Canceled):
		return "task cancelled"
	case errors.As(err, &exhausted):
		return "login attempts exhausted"
	case errors.As(err, &rejected):
		return fmt.Sprintf("credentials rejected (status %d)", rejected.StatusCode)
	case errors.As(err, &unsolvable):
		return fmt.Sprintf("captcha unsolvable after %d rounds", unsolvable.Rounds)
	case errors.As(err, &network):
		return "bad proxy / network error"
	case errors.As(err, &protocol):
		return "unexpected response from gameforge"
	default:
		return "internal error"
	}
}
