package utils

import "testing"

func TestResolveProfile(t *testing.T) {
	if _, err := ResolveProfile("", ""); err != nil {
		t.Fatalf("default profile should resolve: %v", err)
	}
	if _, err := ResolveProfile("Chrome_124", ""); err != nil {
		t.Errorf("profile names are case insensitive: %v", err)
	}
	if _, err := ResolveProfile("netscape_4", ""); err == nil {
		t.Error("expected an error for an unknown profile")
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(ClientOptions{Profile: DefaultProfile})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, ok := interface{}(client).(CookieSetter); !ok {
		t.Error("tls client should accept cookies")
	}
}
