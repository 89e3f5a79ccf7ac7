package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/oschwald/geoip2-golang"

	utils "ogameapi/utils"
)

// DeviceDescriptor is the browser profile the blackbox asserts.
// Field order is the wire order.
type DeviceDescriptor struct {
	Version        int         `json:"v"`
	Timezone       string      `json:"tz"`
	DoNotTrack     bool        `json:"dnt"`
	Product        string      `json:"product"`
	OSType         string      `json:"osType"`
	App            string      `json:"app"`
	Vendor         string      `json:"vendor"`
	Memory         int         `json:"mem"`
	Concurrency    int         `json:"con"`
	Language       string      `json:"lang"`
	Plugins        string      `json:"plugins"`
	GPU            string      `json:"gpu"`
	Fonts          string      `json:"fonts"`
	AudioContext   string      `json:"audioC"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	Depth          int         `json:"depth"`
	Video          string      `json:"video"`
	Audio          string      `json:"audio"`
	Media          string      `json:"media"`
	Permissions    string      `json:"permissions"`
	AudioFP        float64     `json:"audioFP"`
	WebglFP        string      `json:"webglFP"`
	CanvasFP       int         `json:"canvasFP"`
	Creation       string      `json:"creation"`
	UUID           string      `json:"uuid"`
	Duration       int         `json:"d"`
	OSVersion      string      `json:"osVersion"`
	Vector         string      `json:"vector"`
	UserAgent      string      `json:"userAgent"`
	ServerTimeInMS string      `json:"serverTimeInMS"`
	Request        interface{} `json:"request"`
}

var DescriptorFields = []string{
	"v", "tz", "dnt", "product", "osType", "app", "vendor", "mem", "con", "lang", "plugins", "gpu", "fonts",
	"audioC", "width", "height", "depth", "video", "audio", "media", "permissions", "audioFP", "webglFP",
	"canvasFP", "creation", "uuid", "d", "osVersion", "vector", "userAgent", "serverTimeInMS", "request",
}

// DefaultDescriptor is a Chrome 111 on Windows 10 with an Intel HD 530.
func DefaultDescriptor(timezone, language string) DeviceDescriptor {
	return DeviceDescriptor{
		Version:      9,
		Timezone:     timezone,
		Product:      "Blink",
		OSType:       "Windows",
		App:          "Blink",
		Vendor:       "Google Inc.",
		Memory:       8,
		Concurrency:  4,
		Language:     language,
		Plugins:      "f473d473013d58cee78732e974dd4af2e8d0105449c384658cbf1505e40ede50",
		GPU:          "Google Inc. (Intel),ANGLE (Intel, Intel(R) HD Graphics 530 Direct3D11 vs_5_0 ps_5_0, D3D11)",
		Fonts:        "67574c80452bcc244b31e19a66a5f4768b48be6d88dfc462d5fa7d8570ed87da",
		AudioContext: "c6a7feda4a58521c20f9ffd946a0ce3edfac57a54e35e73857e710c85a9e4415",
		Width:        1900,
		Height:       1080,
		Depth:        24,
		Video:        "1f03b77fda33742261bea0d27e6423bf22d2bf57febc53ae75b962f6e523cc02",
		Audio:        "c76e22cc6aa9f5a659891983b77cd085a3634dd6f6938827ab5a4c6c61a628e5",
		Media:        "d15bbda6b8af6297ea17f2fb6a724d3bacde9b2e1285a951ee148e4cd5cc452c",
		Permissions:  "86beeaf2f319e30b7dfedc65ccb902a989a210ffb3d4648c80bd0921aa0a2932",
		AudioFP:      35.738334245979786,
		WebglFP:      "7d6f8162c7c6be70d191585fd163f34dbc404a8b4f6fcad4d2e660c7b4e4b694",
		CanvasFP:     732998116,
		UUID:         "ajs3innzou3hulixyriljvj89by",
		OSVersion:    "10",
		UserAgent:    UserAgent,
	}
}

// Stamp fills the per call fields: timestamps, collection time and the timing vector.
func (d DeviceDescriptor) Stamp(rng *rand.Rand, now time.Time) DeviceDescriptor {
	d.Creation = utils.JSISOTime(now)
	d.ServerTimeInMS = utils.JSISOTime(now.Truncate(time.Second))
	d.Duration = 300 + rng.Intn(201)
	d.Vector = utils.TimingVector(rng, now)
	return d
}

func (d DeviceDescriptor) Values() []interface{} {
	return []interface{}{
		d.Version, d.Timezone, d.DoNotTrack, d.Product, d.OSType, d.App, d.Vendor, d.Memory, d.Concurrency,
		d.Language, d.Plugins, d.GPU, d.Fonts, d.AudioContext, d.Width, d.Height, d.Depth, d.Video, d.Audio,
		d.Media, d.Permissions, d.AudioFP, d.WebglFP, d.CanvasFP, d.Creation, d.UUID, d.Duration, d.OSVersion,
		d.Vector, d.UserAgent, d.ServerTimeInMS, d.Request,
	}
}

// Serialize writes the values as a compact JSON array without HTML escaping.
// Non-ASCII runes are written as \uXXXX escapes, astral ones as surrogate pairs.
func (d DeviceDescriptor) Serialize() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.Values()); err != nil {
		return "", fmt.Errorf("failed to serialize descriptor - %w", err)
	}
	return escapeNonASCII(strings.TrimSuffix(buf.String(), "\n")), nil
}

func escapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		for _, unit := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, "\\u%04x", unit)
		}
	}
	return b.String()
}

// EncodeBlackbox turns a stamped descriptor into a token, without the "tra:" prefix.
func EncodeBlackbox(d DeviceDescriptor) (string, error) {
	plain, err := d.Serialize()
	if err != nil {
		return "", err
	}
	return utils.EncryptBlackbox(plain), nil
}

// DecodeBlackbox reverses EncodeBlackbox and names every value.
func DecodeBlackbox(token string) (map[string]interface{}, error) {
	plain, err := utils.DecryptBlackbox(token)
	if err != nil {
		return nil, err
	}

	var values []interface{}
	dec := json.NewDecoder(strings.NewReader(plain))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to parse blackbox - %w", err)
	}
	if len(values) != len(DescriptorFields) {
		return nil, fmt.Errorf("blackbox has %d values, expected %d", len(values), len(DescriptorFields))
	}

	named := make(map[string]interface{}, len(values))
	for i, v := range values {
		named[DescriptorFields[i]] = v
	}
	return named, nil
}

// BlackboxGenerator stamps a fresh token from a fixed template on every call.
type BlackboxGenerator struct {
	Template DeviceDescriptor

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewBlackboxGenerator(template DeviceDescriptor) *BlackboxGenerator {
	return &BlackboxGenerator{
		Template: template,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

func (g *BlackboxGenerator) Blackbox() (string, error) {
	g.mu.Lock()
	d := g.Template.Stamp(g.rng, g.now())
	g.mu.Unlock()

	return EncodeBlackbox(d)
}

// TimezoneResolver looks the egress IP up in a GeoLite2 City database.
type TimezoneResolver struct {
	Fallback string
	IPURL    string

	db *geoip2.Reader
}

// OpenTimezoneResolver works without a database, it then always answers the fallback.
func OpenTimezoneResolver(database, fallback string) (*TimezoneResolver, error) {
	r := &TimezoneResolver{Fallback: fallback, IPURL: "https://ipinfo.io/ip"}
	if database == "" {
		return r, nil
	}

	db, err := geoip2.Open(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database - %w", err)
	}
	r.db = db
	return r, nil
}

func (r *TimezoneResolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *TimezoneResolver) Lookup(ip net.IP) (string, bool) {
	if r.db == nil || ip == nil {
		return "", false
	}
	record, err := r.db.City(ip)
	if err != nil || record.Location.TimeZone == "" {
		return "", false
	}
	if _, err := time.LoadLocation(record.Location.TimeZone); err != nil {
		return "", false
	}
	return record.Location.TimeZone, true
}

// Resolve asks for the egress IP through doer so a proxy reports its own zone.
func (r *TimezoneResolver) Resolve(ctx context.Context, doer utils.HttpDoer) string {
	if r.db == nil {
		return r.Fallback
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, r.IPURL, nil)
	if err != nil {
		return r.Fallback
	}
	req.Header.Set("user-agent", UserAgent)
	req.Header.Set("accept", "text/plain")

	resp, err := doer.Do(req)
	if err != nil {
		return r.Fallback
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return r.Fallback
	}

	if tz, ok := r.Lookup(net.ParseIP(strings.TrimSpace(string(body)))); ok {
		return tz
	}
	return r.Fallback
}
