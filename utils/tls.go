package utils

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/http2"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	tls "github.com/bogdanfinn/utls"
)

const DefaultProfile = "chrome_124"

// CookieSetter is implemented by tls_client.HttpClient.
type CookieSetter interface {
	SetCookies(u *url.URL, cookies []*fhttp.Cookie)
}

type ClientOptions struct {
	Proxy   string
	Timeout time.Duration
	Profile string
	JA3     string
}

// NewClient builds the browser-like client every login task talks through.
func NewClient(opts ClientOptions) (tls_client.HttpClient, error) {
	profile, err := ResolveProfile(opts.Profile, opts.JA3)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutMilliseconds(int(timeout.Milliseconds())),
		tls_client.WithClientProfile(profile),
		tls_client.WithCookieJar(jar),
		tls_client.WithRandomTLSExtensionOrder(),
	}
	if opts.Proxy != "" {
		options = append(options, tls_client.WithProxyUrl(opts.Proxy))
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client - %s", err)
	}
	return client, nil
}

// ResolveProfile prefers a custom JA3 over a named built-in profile.
func ResolveProfile(name, ja3 string) (profiles.ClientProfile, error) {
	if strings.TrimSpace(ja3) != "" {
		return ProfileFromJA3(ja3)
	}

	if name == "" {
		name = DefaultProfile
	}
	profile, ok := profiles.MappedTLSClients[strings.ToLower(name)]
	if !ok {
		return profiles.ClientProfile{}, fmt.Errorf("unknown tls profile %q", name)
	}
	return profile, nil
}

// ProfileFromJA3 wraps a JA3 string with chrome's http2 settings.
func ProfileFromJA3(ja3 string) (profiles.ClientProfile, error) {
	signatureAlgorithms := []string{
		"ECDSAWithP256AndSHA256",
		"PSSWithSHA256",
		"PKCS1WithSHA256",
		"ECDSAWithP384AndSHA384",
		"PSSWithSHA384",
		"PKCS1WithSHA384",
		"PSSWithSHA512",
		"PKCS1WithSHA512",
	}
	supportedVersions := []string{"GREASE", "1.3", "1.2"}
	supportedGroups := []string{"GREASE", "X25519", "secp256r1", "secp384r1"}

	alpnProtocols := []string{"h2", "http/1.1"}
	alpsProtocols := []string{"h2"}

	cipherSuites := []tls_client.CandidateCipherSuites{
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_AES_128_GCM"},
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_AES_256_GCM"},
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_CHACHA20_POLY1305"},
	}
	curvePriorities := []uint16{128, 160, 192, 224}

	specFunc, err := tls_client.GetSpecFactoryFromJa3String(
		ja3, signatureAlgorithms, signatureAlgorithms, supportedVersions,
		supportedGroups, alpnProtocols, alpsProtocols, cipherSuites, curvePriorities, "brotli",
	)
	if err != nil {
		return profiles.ClientProfile{}, fmt.Errorf("invalid ja3 - %s", err)
	}

	settings := map[http2.SettingID]uint32{
		http2.SettingHeaderTableSize:   65536,
		http2.SettingEnablePush:        0,
		http2.SettingInitialWindowSize: 6291456,
		http2.SettingMaxHeaderListSize: 262144,
	}
	settingsOrder := []http2.SettingID{
		http2.SettingHeaderTableSize,
		http2.SettingEnablePush,
		http2.SettingInitialWindowSize,
		http2.SettingMaxHeaderListSize,
	}

	return profiles.NewClientProfile(
		tls.ClientHelloID{
			Client:      "CustomJA3",
			Version:     "1",
			Seed:        nil,
			SpecFactory: specFunc,
		},
		settings,
		settingsOrder,
		[]string{":method", ":authority", ":scheme", ":path"},
		uint32(15663105),
		nil,
		nil,
	), nil
}
