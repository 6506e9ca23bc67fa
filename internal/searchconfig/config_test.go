package searchconfig

import "testing"

func TestFromEnv_DirectNode(t *testing.T) {
	cfg := FromEnv(map[string]string{EnvNode: "http://x:1234"})

	if !cfg.Enabled {
		t.Fatal("Enabled = false, want true")
	}
	if cfg.Node != "http://x:1234" {
		t.Errorf("Node = %q, want %q", cfg.Node, "http://x:1234")
	}
	if cfg.AccessKeyID != "" || cfg.SecretKey != "" {
		t.Errorf("credentials = (%q, %q), want empty", cfg.AccessKeyID, cfg.SecretKey)
	}
}

func TestFromEnv_Empty(t *testing.T) {
	cfg := FromEnv(map[string]string{})

	if cfg.Enabled {
		t.Fatal("Enabled = true, want false")
	}
	if cfg != (Config{}) {
		t.Errorf("cfg = %+v, want zero value", cfg)
	}
}

func TestFromEnv_ServiceBinding(t *testing.T) {
	blob := `{
		"aws-elasticsearch": [
			{
				"credentials": {
					"uri": "https://search.example.com:443",
					"access_key": "AKIAEXAMPLE",
					"secret_key": "sekret"
				}
			}
		]
	}`

	cfg := FromEnv(map[string]string{EnvServices: blob})

	if !cfg.Enabled {
		t.Fatal("Enabled = false, want true")
	}
	if cfg.Node != "https://search.example.com:443" {
		t.Errorf("Node = %q, want service URI", cfg.Node)
	}
	if cfg.AccessKeyID != "AKIAEXAMPLE" {
		t.Errorf("AccessKeyID = %q, want %q", cfg.AccessKeyID, "AKIAEXAMPLE")
	}
	if cfg.SecretKey != "sekret" {
		t.Errorf("SecretKey = %q, want %q", cfg.SecretKey, "sekret")
	}
}

func TestFromEnv_DirectNodeWinsOverBinding(t *testing.T) {
	cfg := FromEnv(map[string]string{
		EnvNode:     "http://local:9200",
		EnvServices: `{"aws-elasticsearch":[{"credentials":{"uri":"https://other"}}]}`,
	})

	if cfg.Node != "http://local:9200" {
		t.Errorf("Node = %q, want direct node", cfg.Node)
	}
	if cfg.AccessKeyID != "" {
		t.Errorf("AccessKeyID = %q, want empty for direct node", cfg.AccessKeyID)
	}
}

func TestFromEnv_IgnoreFlag(t *testing.T) {
	cfg := FromEnv(map[string]string{
		EnvIgnore: "true",
		EnvNode:   "http://x:1234",
	})

	if cfg.Enabled {
		t.Error("Enabled = true, want false when ignore flag set")
	}
}

func TestFromEnv_MalformedBinding(t *testing.T) {
	cfg := FromEnv(map[string]string{EnvServices: "{not json"})

	if cfg.Enabled {
		t.Error("Enabled = true, want false for malformed binding blob")
	}
}

func TestFromEnv_BindingWithoutService(t *testing.T) {
	cfg := FromEnv(map[string]string{EnvServices: `{"aws-rds":[{}]}`})

	if cfg.Enabled {
		t.Error("Enabled = true, want false when no search service bound")
	}
}

func TestFromEnv_BindingWithoutURI(t *testing.T) {
	cfg := FromEnv(map[string]string{
		EnvServices: `{"aws-elasticsearch":[{"credentials":{"access_key":"k"}}]}`,
	})

	if cfg.Enabled {
		t.Error("Enabled = true, want false when binding has no endpoint URI")
	}
}
