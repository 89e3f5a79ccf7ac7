package utils

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const BlackboxAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_="

// QueryEscape escapes !'()* too, encodeURIComponent keeps them.
var uriComponentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent matches the browser's encodeURIComponent.
func EncodeURIComponent(s string) string {
	return uriComponentReplacer.Replace(url.QueryEscape(s))
}

// RunningSum chains every codepoint onto the previous output codepoint mod 256.
func RunningSum(s string) []rune {
	in := []rune(s)
	if len(in) == 0 {
		return nil
	}

	out := make([]rune, len(in))
	out[0] = in[0]
	for i := 1; i < len(in); i++ {
		out[i] = (out[i-1] + in[i]) % 256
	}
	return out
}

// PseudoB64 packs codepoints three at a time into four alphabet symbols.
// A short final group is zero filled and its output cut, no padding symbol is added.
func PseudoB64(codes []rune) string {
	var b strings.Builder
	b.Grow((len(codes) + 2) / 3 * 4)

	for i := 0; i < len(codes); i += 3 {
		c1 := int(codes[i])
		c2, c3 := 0, 0
		if i+1 < len(codes) {
			c2 = int(codes[i+1])
		}
		if i+2 < len(codes) {
			c3 = int(codes[i+2])
		}

		t := c1<<16 | c2<<8 | c3
		b.WriteByte(BlackboxAlphabet[t>>18&63])
		b.WriteByte(BlackboxAlphabet[t>>12&63])
		b.WriteByte(BlackboxAlphabet[t>>6&63])
		b.WriteByte(BlackboxAlphabet[t&63])
	}

	out := b.String()
	if rem := len(codes) % 3; rem > 0 {
		out = out[:len(out)-(3-rem)]
	}
	return out
}

func EncryptBlackbox(plain string) string {
	return PseudoB64(RunningSum(EncodeURIComponent(plain)))
}

// DecryptBlackbox reverses EncryptBlackbox and returns the serialized descriptor.
func DecryptBlackbox(token string) (string, error) {
	token = strings.TrimPrefix(token, "tra:")

	codes := make([]int, 0, len(token)*3/4)
	for i := 0; i < len(token); i += 4 {
		group := token[i:min(i+4, len(token))]
		if len(group) == 1 {
			return "", fmt.Errorf("invalid blackbox length %d", len(token))
		}

		t := 0
		for j := 0; j < len(group); j++ {
			v := strings.IndexByte(BlackboxAlphabet, group[j])
			if v < 0 {
				return "", fmt.Errorf("invalid blackbox character %q at %d", group[j], i+j)
			}
			t |= v << (18 - 6*j)
		}

		codes = append(codes, t>>16&255)
		if len(group) > 2 {
			codes = append(codes, t>>8&255)
		}
		if len(group) > 3 {
			codes = append(codes, t&255)
		}
	}

	if len(codes) == 0 {
		return "", nil
	}

	encoded := make([]byte, len(codes))
	encoded[0] = byte(codes[0])
	for i := 1; i < len(codes); i++ {
		encoded[i] = byte((codes[i] - codes[i-1] + 256) % 256)
	}

	plain, err := url.PathUnescape(string(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to unescape blackbox - %s", err)
	}
	return plain, nil
}

// JSISOTime formats like Date.prototype.toISOString.
func JSISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// TimingVector is 100 printable characters, a space and the unix ms timestamp, base64 encoded.
func TimingVector(rng *rand.Rand, now time.Time) string {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteByte(byte(32 + rng.Float64()*94))
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))

	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}
