package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"backend": map[string]any{
			"base_url":    "http://localhost:8787",
			"max_retries": 2.0,
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["backend.base_url"] != "http://localhost:8787" {
		t.Errorf("expected backend.base_url, got %v", got["backend.base_url"])
	}
	if got["backend.max_retries"] != 2.0 {
		t.Errorf("expected backend.max_retries=2, got %v", got["backend.max_retries"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	got := Flatten(map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
	})
	if got["a.b.c"] != "deep" || len(got) != 1 {
		t.Errorf("expected only a.b.c=deep, got %v", got)
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"devserver": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("empty nested map should contribute no keys, got %v", got)
	}
}

func TestUnflatten_Nested(t *testing.T) {
	got := Unflatten(map[string]any{
		"devserver.listen":     ":8787",
		"devserver.jwt_secret": "s3cret",
		"data_dir":             "/tmp/x",
	})
	dev, ok := got["devserver"].(map[string]any)
	if !ok {
		t.Fatalf("expected devserver map, got %T", got["devserver"])
	}
	if dev["listen"] != ":8787" || dev["jwt_secret"] != "s3cret" {
		t.Errorf("unexpected devserver map: %v", dev)
	}
	if got["data_dir"] != "/tmp/x" {
		t.Errorf("expected data_dir=/tmp/x, got %v", got["data_dir"])
	}
}

func TestUnflatten_ScalarReplacedByMap(t *testing.T) {
	got := Unflatten(map[string]any{
		"backend":          "oops",
		"backend.base_url": "http://x",
	})
	// Map iteration order decides which write lands last; either the
	// scalar or the nested map survives, but nothing panics.
	if _, ok := got["backend"]; !ok {
		t.Error("expected backend key to exist")
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	cfg := defaults()
	cfg.DevServer.JWTSecret = "round-trip"
	m, err := ToMap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	back := Unflatten(Flatten(m))
	dev := back["devserver"].(map[string]any)
	if dev["jwt_secret"] != "round-trip" {
		t.Errorf("jwt_secret lost in round trip: %v", dev["jwt_secret"])
	}
	if back["refresh_schedule"] != "@every 1m" {
		t.Errorf("refresh_schedule lost in round trip: %v", back["refresh_schedule"])
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"long", "dev-secret-9f3a", "***9f3a"},
		{"short", "ab", "***ab"},
		{"exactly four", "abcd", "***abcd"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{
				"devserver.jwt_secret": tt.secret,
				"backend.base_url":     "http://x",
			})
			if got["devserver.jwt_secret"] != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got["devserver.jwt_secret"])
			}
			if got["backend.base_url"] != "http://x" {
				t.Errorf("non-secret changed: %v", got["backend.base_url"])
			}
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	for _, k := range []string{"devserver.jwt_secret", "devserver.llm_api_key"} {
		if !IsSecretKey(k) {
			t.Errorf("%s should be secret", k)
		}
	}
	if IsSecretKey("devserver.listen") {
		t.Error("devserver.listen should not be secret")
	}
}
