package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"

	utils "ogameapi/utils"
)

const (
	UserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36"
	DataBrands     = `"Google Chrome";v="111", "Not(A:Brand";v="8", "Chromium";v="111"`
	AcceptLanguage = "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"
)

// HTTPClient is what a login task talks through. tls_client.HttpClient satisfies it.
type HTTPClient interface {
	utils.HttpDoer
	utils.CookieSetter
}

func newRequest(ctx context.Context, method, reqURL string, body []byte, accept string) (*fhttp.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := fhttp.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}

	req.Header = fhttp.Header{
		"accept":             {accept},
		"accept-encoding":    {`gzip, deflate, br`},
		"accept-language":    {AcceptLanguage},
		"sec-ch-ua":          {DataBrands},
		"sec-ch-ua-mobile":   {`?0`},
		"sec-ch-ua-platform": {`"Windows"`},
		"sec-fetch-dest":     {`empty`},
		"sec-fetch-mode":     {`cors`},
		"sec-fetch-site":     {`same-site`},
		"user-agent":         {UserAgent},
		fhttp.HeaderOrderKey: {
			"host",
			"content-length",
			"sec-ch-ua",
			"accept",
			"content-type",
			"authorization",
			"sec-ch-ua-mobile",
			"user-agent",
			"sec-ch-ua-platform",
			"origin",
			"sec-fetch-site",
			"sec-fetch-mode",
			"sec-fetch-dest",
			"referer",
			"accept-encoding",
			"accept-language",
			"cookie",
		},
		fhttp.PHeaderOrderKey: {":method", ":authority", ":scheme", ":path"},
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	return req, nil
}

func newJSONRequest(ctx context.Context, method, reqURL string, payload interface{}) (*fhttp.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return newRequest(ctx, method, reqURL, body, "application/json")
}

func authorize(req *fhttp.Request, session utils.Session) {
	if session.BearerToken == "" {
		return
	}
	req.Header.Set("authorization", "Bearer "+session.BearerToken)

	cookies := make([]string, 0, len(session.Cookies))
	for name, value := range session.Cookies {
		cookies = append(cookies, name+"="+value)
	}
	if len(cookies) > 0 {
		req.Header.Set("cookie", strings.Join(cookies, "; "))
	}
}

// send performs the request and reads the whole body.
// Transport failures become *NetworkError unless the context ended first.
func send(ctx context.Context, doer utils.HttpDoer, op string, req *fhttp.Request) (*fhttp.Response, []byte, error) {
	resp, err := doer.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read body - %w", err)}
	}
	return resp, body, nil
}

// expectOK turns any non 2xx status into a protocol error.
func expectOK(op string, resp *fhttp.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &ProtocolFormatError{
		Op:         op,
		Detail:     fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, utils.Truncate(utils.StripHTML(string(body)), 120)),
		StatusCode: resp.StatusCode,
	}
}

func decodeJSON(op string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return protocolError(op, "malformed json", err)
	}
	return nil
}
