package utils

import (
	"encoding/base64"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
)

const jsBlackbox = `
function pseudoB64(s) {
	var lut = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_=";
	var mod = s.length % 3;
	var out = "";
	for (var i = 0; i < s.length; i += 3) {
		var c1 = s.charCodeAt(i);
		var c2 = i + 1 < s.length ? s.charCodeAt(i + 1) : 0;
		var c3 = i + 2 < s.length ? s.charCodeAt(i + 2) : 0;
		var t = c1 << 16 | c2 << 8 | c3;
		out += lut[t >> 18 & 63] + lut[t >> 12 & 63] + lut[t >> 6 & 63] + lut[t & 63];
	}
	return mod > 0 ? out.slice(0, mod - 3) : out;
}

function encrypt(s) {
	s = encodeURIComponent(s);
	var out = s[0];
	for (var i = 1; i < s.length; i++) {
		out += String.fromCharCode((out.charCodeAt(i - 1) + s.charCodeAt(i)) % 256);
	}
	return pseudoB64(out);
}
`

var parityInputs = []string{
	"a",
	"hello world",
	"a+b=c&d",
	"~!*'()-_.",
	"/?#[]@$,;:",
	"Grüße aus München",
	`[9,"Europe/Berlin",false,"Blink",35.738334245979786,null]`,
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36",
}

func newJSRuntime(t *testing.T) *goja.Runtime {
	t.Helper()

	vm := goja.New()
	if _, err := vm.RunString(jsBlackbox); err != nil {
		t.Fatalf("failed to load js reference: %v", err)
	}
	return vm
}

func callJS(t *testing.T, vm *goja.Runtime, name, arg string) string {
	t.Helper()

	fn, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		t.Fatalf("%s is not a function", name)
	}
	res, err := fn(goja.Undefined(), vm.ToValue(arg))
	if err != nil {
		t.Fatalf("%s(%q) failed: %v", name, arg, err)
	}
	return res.String()
}

func TestEncodeURIComponent(t *testing.T) {
	cases := map[string]string{
		"a b":    "a%20b",
		"a+b":    "a%2Bb",
		"ä":      "%C3%A4",
		"~!*'()": "~!*'()",
		"/?#&=":  "%2F%3F%23%26%3D",
		"%28":    "%2528",
		`"x",1`:  "%22x%22%2C1",
	}

	for in, want := range cases {
		if got := EncodeURIComponent(in); got != want {
			t.Errorf("EncodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeURIComponentMatchesJS(t *testing.T) {
	vm := newJSRuntime(t)

	for _, in := range parityInputs {
		want := callJS(t, vm, "encodeURIComponent", in)
		if got := EncodeURIComponent(in); got != want {
			t.Errorf("EncodeURIComponent(%q) = %q, js gives %q", in, got, want)
		}
	}
}

func TestEncryptBlackboxVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a", "YQ"},
		{"ab", "YcM"},
		{"abc", "YcMm"},
		{"hello world", "aM05pRQ5a5sSgfNfww"},
		{"!~*'()", "IZ_J8BhB"},
		{`[9,"Europe/Berlin",false,null]`, "JVqc1fosb5TG-D2yJJMDaI2_BUesHorzYYa46g9BhOpLtyqPtOYplwx45Ak-gg"},
		{"Mozilla/5.0 (Windows NT 10.0)", "Tbw2nwt32P0vdarYCC1fj7cOd-VJuC-ix_kpd8vwIlKDs-EROg"},
	}

	for _, tc := range cases {
		if got := EncryptBlackbox(tc.in); got != tc.want {
			t.Errorf("EncryptBlackbox(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncryptBlackboxMatchesJS(t *testing.T) {
	vm := newJSRuntime(t)

	for _, in := range parityInputs {
		want := callJS(t, vm, "encrypt", in)
		if got := EncryptBlackbox(in); got != want {
			t.Errorf("EncryptBlackbox(%q) = %q, js gives %q", in, got, want)
		}
	}
}

func TestPseudoB64(t *testing.T) {
	cases := []struct {
		in   []rune
		want string
	}{
		{[]rune("Man"), "TWFu"},
		{[]rune("Ma"), "TWE"},
		{[]rune("M"), "TQ"},
		{nil, ""},
		// codepoints above 255 are shifted, not masked
		{[]rune{256, 'A', 'B'}, "AEFC"},
	}

	for _, tc := range cases {
		if got := PseudoB64(tc.in); got != tc.want {
			t.Errorf("PseudoB64(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunningSum(t *testing.T) {
	got := RunningSum("abc")
	want := []rune{97, 195, 38}
	if len(got) != len(want) {
		t.Fatalf("RunningSum length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RunningSum[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if RunningSum("") != nil {
		t.Error("RunningSum of empty string should be nil")
	}
}

func TestBlackboxShape(t *testing.T) {
	for _, in := range parityInputs {
		out := EncryptBlackbox(in)

		for _, c := range out {
			if !strings.ContainsRune(BlackboxAlphabet, c) {
				t.Fatalf("EncryptBlackbox(%q) produced %q outside the alphabet", in, c)
			}
		}

		n := len(EncodeURIComponent(in))
		wantLen := n / 3 * 4
		if rem := n % 3; rem > 0 {
			wantLen += rem + 1
		}
		if len(out) != wantLen {
			t.Errorf("EncryptBlackbox(%q) length = %d, want %d", in, len(out), wantLen)
		}
		if n%3 == 0 && len(out)%4 != 0 {
			t.Errorf("EncryptBlackbox(%q) length %d is not a multiple of 4", in, len(out))
		}
	}
}

func TestDecryptBlackbox(t *testing.T) {
	for _, in := range parityInputs {
		plain, err := DecryptBlackbox("tra:" + EncryptBlackbox(in))
		if err != nil {
			t.Fatalf("DecryptBlackbox failed for %q: %v", in, err)
		}
		if plain != in {
			t.Errorf("DecryptBlackbox = %q, want %q", plain, in)
		}
	}

	if _, err := DecryptBlackbox("abcde"); err == nil {
		t.Error("expected an error for a dangling single symbol")
	}
	if _, err := DecryptBlackbox("ab*d"); err == nil {
		t.Error("expected an error for a symbol outside the alphabet")
	}
}

func TestJSISOTime(t *testing.T) {
	ts := time.Date(2023, 3, 14, 9, 26, 53, 589_000_000, time.FixedZone("CET", 3600))
	if got := JSISOTime(ts); got != "2023-03-14T08:26:53.589Z" {
		t.Errorf("JSISOTime = %q", got)
	}
}

func TestTimingVector(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	raw, err := base64.StdEncoding.DecodeString(TimingVector(rand.New(rand.NewSource(1)), now))
	if err != nil {
		t.Fatalf("vector is not base64: %v", err)
	}

	if len(raw) != 100+1+13 {
		t.Fatalf("vector length = %d", len(raw))
	}
	for _, c := range raw[:100] {
		if c < 32 || c > 125 {
			t.Fatalf("vector char %d out of range", c)
		}
	}
	if !strings.HasSuffix(string(raw), " 1700000000123") {
		t.Errorf("vector suffix = %q", raw[100:])
	}
}
