package auth

import "testing"

// OIDCVerifierはCredentialVerifierインターフェースを満たすことを検証
func TestOIDCVerifier_ImplementsInterface(t *testing.T) {
	var _ CredentialVerifier = (*OIDCVerifier)(nil)
}

// TestClaims_IsAdmin はrole属性による管理者判定を検証する。
func TestClaims_IsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"member", false},
		{"", false},
		{"Admin", false}, // 大文字小文字は区別する
	}
	for _, tt := range tests {
		c := &Claims{Role: tt.role}
		if got := c.IsAdmin(); got != tt.want {
			t.Errorf("IsAdmin() with role %q = %v, want %v", tt.role, got, tt.want)
		}
	}
}
