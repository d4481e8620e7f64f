package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestIssuer(at *time.Time) *Issuer {
	i := NewIssuer("secret", 2*time.Hour)
	i.now = func() time.Time { return *at }
	return i
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(&now)

	tok := issuer.Issue(ActionTrack)

	t.Run("accepts fresh token", func(t *testing.T) {
		assert.NoError(t, issuer.Verify(tok, ActionTrack))
	})

	t.Run("rejects other action", func(t *testing.T) {
		assert.ErrorIs(t, issuer.Verify(tok, "other"), ErrInvalid)
	})

	t.Run("rejects other secret", func(t *testing.T) {
		other := NewIssuer("different", 2*time.Hour)
		other.now = issuer.now
		assert.ErrorIs(t, other.Verify(tok, ActionTrack), ErrInvalid)
	})

	t.Run("rejects malformed tokens", func(t *testing.T) {
		for _, bad := range []string{"", "abc", "123.", ".abc", "x.y"} {
			assert.ErrorIs(t, issuer.Verify(bad, ActionTrack), ErrInvalid, bad)
		}
	})
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(&now)
	tok := issuer.Issue(ActionTrack)

	now = now.Add(time.Hour)
	assert.NoError(t, issuer.Verify(tok, ActionTrack), "still valid during the next tick")

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, issuer.Verify(tok, ActionTrack), ErrInvalid)
}
