package security

import "testing"

// TestSanitize_StripsTags はHTMLタグがすべて除去されることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	s := NewProfileSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"プレーンテキストはそのまま", "Taro Yamada", "Taro Yamada"},
		{"scriptタグの除去", `<script>alert("x")</script>Taro`, "Taro"},
		{"imgタグの除去", `Taro<img src="x" onerror="alert(1)">`, "Taro"},
		{"装飾タグも許可しない", "<b>Taro</b>", "Taro"},
		{"空文字列", "", ""},
		{"前後の空白をトリム", "  Taro  ", "Taro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力への再適用が同一出力になることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewProfileSanitizer()

	in := `<a href="https://example.com">Taro</a>`
	once := s.Sanitize(in)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize is not idempotent: %q -> %q", once, twice)
	}
}
