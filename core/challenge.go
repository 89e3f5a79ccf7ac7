package core

import (
	"context"
	"fmt"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog"

	"ogameapi/captcha"
	utils "ogameapi/utils"
)

// AnswerSource picks a tile for one round. *captcha.Solver implements it.
type AnswerSource interface {
	Answer(question, icons []byte) (captcha.Answer, error)
}

type ChallengeResult struct {
	ChallengeID   string
	Rounds        int
	LowConfidence int
}

// ChallengeLoop drives the image-drop challenge until it is solved or MaxRounds answers were rejected.
type ChallengeLoop struct {
	Doer         utils.HttpDoer
	ChallengeURL string
	ImageDropURL string
	Locale       string
	MaxRounds    int
	Answers      AnswerSource
	Log          zerolog.Logger
}

// ParseChallengeID strips the service suffix from a gf-challenge-id header.
func ParseChallengeID(header string) (string, error) {
	id := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if id == "" {
		return "", protocolError("login", "missing gf-challenge-id header", nil)
	}
	return id, nil
}

func (c *ChallengeLoop) challengeURL(id string) string {
	return fmt.Sprintf("%s/challenge/%s/%s", strings.TrimRight(c.ImageDropURL, "/"), id, c.Locale)
}

// Solve blocks until the challenge is solved. Errors are not retried here.
func (c *ChallengeLoop) Solve(ctx context.Context, id string) (ChallengeResult, error) {
	result := ChallengeResult{ChallengeID: id}
	log := c.Log.With().Str("challenge", id).Logger()

	version, err := c.open(ctx, id)
	if err != nil {
		return result, err
	}

	for result.Rounds < c.MaxRounds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		question, err := c.fetch(ctx, "text", id, version)
		if err != nil {
			return result, err
		}
		icons, err := c.fetch(ctx, "drag-icons", id, version)
		if err != nil {
			return result, err
		}
		if _, err := c.fetch(ctx, "drop-target", id, version); err != nil {
			return result, err
		}

		answer, err := c.Answers.Answer(question, icons)
		if err != nil {
			return result, protocolError("challenge", "unusable challenge images", err)
		}
		result.Rounds++
		if answer.LowConfidence {
			result.LowConfidence++
		}

		status, err := c.submit(ctx, id, answer.Index)
		if err != nil {
			return result, err
		}

		log.Debug().
			Int("round", result.Rounds).
			Int("answer", answer.Index).
			Str("label", answer.Label).
			Str("status", status.Status).
			Msg("challenge round")

		switch status.Status {
		case utils.StatusSolved:
			return result, nil
		case utils.StatusPresented:
			if status.LastUpdated == nil {
				return result, protocolError("challenge answer", "missing lastUpdated", nil)
			}
			version = *status.LastUpdated
		default:
			return result, protocolError("challenge", fmt.Sprintf("unknown status %q", status.Status), nil)
		}
	}

	return result, &CaptchaUnsolvable{ChallengeID: id, Rounds: result.Rounds}
}

// open registers the challenge and returns its first version token.
func (c *ChallengeLoop) open(ctx context.Context, id string) (int64, error) {
	req, err := newRequest(ctx, fhttp.MethodGet, fmt.Sprintf("%s/challenge/%s", strings.TrimRight(c.ChallengeURL, "/"), id), nil, "*/*")
	if err != nil {
		return 0, err
	}
	resp, body, err := send(ctx, c.Doer, "challenge", req)
	if err != nil {
		return 0, err
	}
	if err := expectOK("challenge", resp, body); err != nil {
		return 0, err
	}

	req, err = newRequest(ctx, fhttp.MethodGet, c.challengeURL(id), nil, "application/json")
	if err != nil {
		return 0, err
	}
	resp, body, err = send(ctx, c.Doer, "challenge", req)
	if err != nil {
		return 0, err
	}
	if err := expectOK("challenge", resp, body); err != nil {
		return 0, err
	}

	var init utils.ChallengeInit
	if err := decodeJSON("challenge", body, &init); err != nil {
		return 0, err
	}
	if init.LastUpdated == nil {
		return 0, protocolError("challenge", "missing lastUpdated", nil)
	}
	return *init.LastUpdated, nil
}

func (c *ChallengeLoop) fetch(ctx context.Context, resource, id string, version int64) ([]byte, error) {
	req, err := newRequest(ctx, fhttp.MethodGet, fmt.Sprintf("%s/%s?%d", c.challengeURL(id), resource, version), nil, "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	resp, body, err := send(ctx, c.Doer, "challenge "+resource, req)
	if err != nil {
		return nil, err
	}
	if err := expectOK("challenge "+resource, resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *ChallengeLoop) submit(ctx context.Context, id string, index int) (utils.ChallengeStatus, error) {
	req, err := newJSONRequest(ctx, fhttp.MethodPost, c.challengeURL(id), utils.AnswerRequest{Answer: index})
	if err != nil {
		return utils.ChallengeStatus{}, err
	}
	resp, body, err := send(ctx, c.Doer, "challenge answer", req)
	if err != nil {
		return utils.ChallengeStatus{}, err
	}
	if err := expectOK("challenge answer", resp, body); err != nil {
		return utils.ChallengeStatus{}, err
	}

	var status utils.ChallengeStatus
	if err := decodeJSON("challenge answer", body, &status); err != nil {
		return utils.ChallengeStatus{}, err
	}
	return status, nil
}
