package utils

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FindMeta returns the content of every <meta name=...> asked for.
func FindMeta(body []byte, names ...string) map[string]string {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	found := make(map[string]string)
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return found
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "meta" {
				continue
			}

			var name, content string
			for _, attr := range token.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if wanted[name] {
				found[name] = content
				if len(found) == len(wanted) {
					return found
				}
			}
		}
	}
}

// StripHTML keeps only text nodes, used to shorten error bodies for logs.
func StripHTML(input string) string {
	var output bytes.Buffer
	tokenizer := html.NewTokenizer(strings.NewReader(input))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(output.String()), " ")
		case html.TextToken:
			output.Write(tokenizer.Text())
			output.WriteByte(' ')
		}
	}
}

// Truncate cuts s to at most n bytes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NewLogger writes colored console output and, when file is set, a rotated log file.
func NewLogger(level, file string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if file != "" {
		lj := &lumberjack.Logger{Filename: file, MaxSize: 25, Compress: true}
		out = zerolog.MultiLevelWriter(out, lj)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
