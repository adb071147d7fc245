package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// conditionLabels are the chat headlines for each chart condition.
var conditionLabels = map[Condition]string{
	CondFetchFailure:     "Chart source unreachable",
	CondParseSkip:        "Rows skipped while parsing",
	CondInvalidParameter: "Overlay settings rejected",
	CondUninitialized:    "Chart session not initialized",
	CondEmptySeries:      "No candles to draw on",
	CondSurface:          "Rendering surface error",
}

var levelMarks = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// TelegramNotifier posts chart alerts to a Telegram chat through the Bot
// API. Repeats of the same condition inside the cooldown are dropped.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
	cooldown time.Duration

	mu   sync.Mutex
	last map[Condition]time.Time
	now  func() time.Time
}

// NewTelegramNotifier creates a Telegram notifier for one chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  "https://api.telegram.org",
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		last:     make(map[Condition]time.Time),
		now:      time.Now,
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (t *TelegramNotifier) WithBaseURL(u string) *TelegramNotifier {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// WithCooldown suppresses repeats of a condition for d. Zero disables it.
func (t *TelegramNotifier) WithCooldown(d time.Duration) *TelegramNotifier {
	t.cooldown = d
	return t
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if t.suppressed(alert.Condition) {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       formatChartAlert(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.forget(alert.Condition)
		return fmt.Errorf("telegram: send %s: %w", alert.Condition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.forget(alert.Condition)
		return fmt.Errorf("telegram: send %s: status %d", alert.Condition, resp.StatusCode)
	}

	log.Printf("[telegram] %s alert for session %s", alert.Condition, alert.Session)
	return nil
}

// suppressed reports whether cond fired within the cooldown, and records
// this attempt otherwise.
func (t *TelegramNotifier) suppressed(cond Condition) bool {
	if t.cooldown <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at, ok := t.last[cond]; ok && now.Sub(at) < t.cooldown {
		return true
	}
	t.last[cond] = now
	return false
}

// forget clears a failed attempt so the next alert retries delivery.
func (t *TelegramNotifier) forget(cond Condition) {
	t.mu.Lock()
	delete(t.last, cond)
	t.mu.Unlock()
}

// formatChartAlert renders:
//
//	🚨 *Chart source unreachable*
//	`CRITICAL · fetch_failure · session 01J...`
//
//	*load stock_data.csv*
//	404 Not Found
func formatChartAlert(a Alert) string {
	mark, ok := levelMarks[a.Level]
	if !ok {
		mark = levelMarks[AlertInfo]
	}
	headline, ok := conditionLabels[a.Condition]
	if !ok {
		headline = string(a.Condition)
	}

	tags := []string{string(a.Level), string(a.Condition)}
	if a.Session != "" {
		tags = append(tags, "session "+a.Session)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", mark, escapeMarkdown(headline))
	fmt.Fprintf(&b, "`%s`", escapeCode(strings.Join(tags, " · ")))
	if a.Title != "" {
		fmt.Fprintf(&b, "\n\n*%s*", escapeMarkdown(a.Title))
	}
	if a.Message != "" {
		fmt.Fprintf(&b, "\n%s", escapeMarkdown(a.Message))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes text outside code spans for MarkdownV2.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// escapeCode escapes text inside a MarkdownV2 code span, where only the
// backslash and backtick are special.
func escapeCode(s string) string { return codeEscaper.Replace(s) }
