package redact

import (
	"errors"
	"testing"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bearer", in: "Authorization: Bearer abc.def.ghi failed", want: "Authorization: Bearer <redacted> failed"},
		{name: "api token kv", in: "bad api_token=s3cr3t here", want: "bad <redacted_kv> here"},
		{name: "password kv", in: "password: hunter2", want: "<redacted_kv>"},
		{name: "database url", in: "dial postgres://bgg:hunter2@db:5432/board_game_db failed", want: "dial postgres://bgg:<redacted>@db:5432/board_game_db failed"},
		{name: "url without password", in: "GET https://boardgamegeek.com/xmlapi2/thing?id=1", want: "GET https://boardgamegeek.com/xmlapi2/thing?id=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Secrets(tt.in); got != tt.want {
				t.Fatalf("Secrets(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	if got := Error(nil); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}
	if got := Error(errors.New("Bearer tok")); got != "Bearer <redacted>" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}
