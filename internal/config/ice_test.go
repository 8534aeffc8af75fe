package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON_StringAndSliceURLs(t *testing.T) {
	raw := `[
		{"urls":"stun:stun.example.org:3478"},
		{"urls":["stun:a.example.org","stuns:b.example.org"]}
	]`
	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers=%d, want 2", len(servers))
	}
	if len(servers[1].URLs) != 2 {
		t.Fatalf("urls=%v, want two entries", servers[1].URLs)
	}
}

func TestParseICEServersJSON_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `stun:server`, ""},
		{"missing urls", `[{"username":"u"}]`, "missing urls"},
		{"bad scheme", `[{"urls":"http://example.org"}]`, "unsupported url scheme"},
		{"turn without username", `[{"urls":"turn:t.example.org","credential":"c"}]`, "username"},
		{"turn without credential", `[{"urls":"turn:t.example.org","username":"u"}]`, "credential"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseICEServersJSON(tc.raw)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv(
		"stun:a.example.org, stun:b.example.org",
		"turn:t.example.org?transport=udp",
		"user", "pass",
	)
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "user" || servers[1].Credential != "pass" {
		t.Fatalf("turn creds=%q/%v", servers[1].Username, servers[1].Credential)
	}
}

func TestParseICEServersFromConvenienceEnv_TurnRequiresBothCreds(t *testing.T) {
	if _, err := ParseICEServersFromConvenienceEnv("", "turn:t.example.org", "user", ""); err == nil {
		t.Fatalf("expected error for missing credential")
	}
	if _, err := ParseICEServersFromConvenienceEnv("", "turn:t.example.org", "", "pass"); err == nil {
		t.Fatalf("expected error for missing username")
	}
}

func TestParseICEServersFromConvenienceEnv_EmptyIsNil(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv("", "", "", "")
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if servers != nil {
		t.Fatalf("servers=%v, want nil", servers)
	}
}
