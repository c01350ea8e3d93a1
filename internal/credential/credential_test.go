package credential

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/switchboard/internal/schema"
)

func at(t time.Time) *time.Time { return &t }

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"expires in 4 minutes", at(now.Add(4 * time.Minute)), true},
		{"expires in 10 minutes", at(now.Add(10 * time.Minute)), false},
		{"already expired", at(now.Add(-time.Minute)), true},
		{"exactly at skew boundary", at(now.Add(RefreshSkew)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Credentials{AccessToken: "tok", ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, c.NeedsRefresh(now))
		})
	}
}

func TestKindAndCheck(t *testing.T) {
	tests := []struct {
		name     string
		creds    Credentials
		authType schema.AuthType
		kind     Kind
		wantErr  bool
	}{
		{"oauth2", Credentials{AccessToken: "a", RefreshToken: "r"}, schema.AuthOAuth2, KindOAuth2, false},
		{"api key", Credentials{APIKey: "k"}, schema.AuthAPIKey, KindAPIKey, false},
		{"basic", Credentials{Username: "u", Password: "p"}, schema.AuthBasicAuth, KindBasic, false},
		{"basic missing password", Credentials{Username: "u"}, schema.AuthBasicAuth, KindBasic, true},
		{"mismatch", Credentials{APIKey: "k"}, schema.AuthOAuth2, KindAPIKey, true},
		{"mixed", Credentials{APIKey: "k", AccessToken: "a"}, schema.AuthAPIKey, KindMixed, true},
		{"none", Credentials{}, schema.AuthNone, KindNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.creds.Kind())
			err := tt.creds.Check(tt.authType)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCredential_CloneIsDeep(t *testing.T) {
	orig := &Credential{
		ID: "c1",
		Credentials: Credentials{
			AccessToken: "a",
			ExpiresAt:   at(time.Unix(100, 0)),
			Extra:       map[string]string{"site_url": "https://x.atlassian.net"},
		},
		Metadata: map[string]any{"team": "T1"},
	}

	cp := orig.Clone()
	cp.Credentials.AccessToken = "b"
	*cp.Credentials.ExpiresAt = time.Unix(200, 0)
	cp.Credentials.Extra["site_url"] = "changed"
	cp.Metadata["team"] = "T2"

	assert.Equal(t, "a", orig.Credentials.AccessToken)
	assert.Equal(t, int64(100), orig.Credentials.ExpiresAt.Unix())
	assert.Equal(t, "https://x.atlassian.net", orig.Credentials.Extra["site_url"])
	assert.Equal(t, "T1", orig.Metadata["team"])

	var nilCred *Credential
	assert.Nil(t, nilCred.Clone())
}

func TestCredentials_LogValueHidesSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	creds := Credentials{AccessToken: "xoxb-secret", RefreshToken: "refresh-secret"}
	logger.Info("refreshing", "credentials", creds)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.False(t, strings.Contains(out, "xoxb-secret"))
	assert.False(t, strings.Contains(out, "refresh-secret"))
	assert.Contains(t, out, `"kind":"oauth2"`)
}
