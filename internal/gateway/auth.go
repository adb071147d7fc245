package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPHeader carries the one-time code on control requests.
const TOTPHeader = "X-Chart-TOTP"

// Guard protects control endpoints with a time-based one-time code. A guard
// without a secret lets every request through.
type Guard struct {
	secret string
	now    func() time.Time
}

// NewGuard returns a guard for the base32 secret.
func NewGuard(secret string) *Guard {
	return &Guard{secret: strings.TrimSpace(secret), now: time.Now}
}

// Enabled reports whether a secret is configured.
func (g *Guard) Enabled() bool { return g != nil && g.secret != "" }

// Check validates a code against the current and adjacent 30s windows.
func (g *Guard) Check(code string) bool {
	if !g.Enabled() {
		return true
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), g.secret, g.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Wrap rejects requests without a valid code with 401.
func (g *Guard) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !g.Enabled() {
			next(w, r)
			return
		}
		code := r.Header.Get(TOTPHeader)
		if code == "" {
			code = r.URL.Query().Get("totp")
		}
		if !g.Check(code) {
			writeError(w, http.StatusUnauthorized, "invalid or missing one-time code")
			return
		}
		next(w, r)
	}
}
