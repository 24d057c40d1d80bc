package stableaudio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	generatePath   = "/v2beta/audio/stable-audio-2/text-to-audio"
	requestTimeout = 3 * time.Minute

	// Service limits for a single clip.
	minSeconds = 1.0
	maxSeconds = 190.0
)

type Adapter struct {
	key     string
	baseURL string
	format  string
	steps   int
	client  *http.Client
	log     zerolog.Logger
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option { return func(a *Adapter) { a.client = c } }

func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.log = l } }

// New builds a Stable Audio client. format is the output container (wav or
// mp3) and steps the diffusion step count.
func New(apiKey, baseURL, format string, steps int, opts ...Option) *Adapter {
	if format == "" {
		format = "wav"
	}
	if steps <= 0 {
		steps = 30
	}
	a := &Adapter{
		key:     apiKey,
		baseURL: normalizeBaseURL(baseURL),
		format:  format,
		steps:   steps,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Format is the file extension of generated clips.
func (a *Adapter) Format() string { return a.format }

func (a *Adapter) Generate(ctx context.Context, prompt string, seconds float64, outPath string) error {
	if strings.TrimSpace(a.key) == "" {
		return fmt.Errorf("stable audio: STABLE_AUDIO_API_KEY is not set")
	}
	seconds = min(max(seconds, minSeconds), maxSeconds)

	body, contentType, err := a.form(prompt, seconds)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+generatePath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "audio/*")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("stable audio request: %w", err)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stable audio read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("stable audio status %d: %s", resp.StatusCode, truncate(redactSecrets(errorText(rb), a.key), 400))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "audio/") {
		return fmt.Errorf("stable audio: unexpected content type %q: %s", ct, truncate(redactSecrets(string(rb), a.key), 200))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, rb, 0o644); err != nil {
		return err
	}
	a.log.Debug().
		Str("file", outPath).
		Float64("seconds", seconds).
		Int("bytes", len(rb)).
		Dur("took", time.Since(start)).
		Msg("music clip generated")
	return nil
}

func (a *Adapter) form(prompt string, seconds float64) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"prompt", prompt},
		{"output_format", a.format},
		{"duration", strconv.FormatFloat(seconds, 'f', 1, 64)},
		{"steps", strconv.Itoa(a.steps)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorText pulls the human readable part out of a JSON error body.
func errorText(b []byte) string {
	if !gjson.ValidBytes(b) {
		return string(b)
	}
	r := gjson.ParseBytes(b)
	var parts []string
	if name := r.Get("name").String(); name != "" {
		parts = append(parts, name)
	}
	r.Get("errors").ForEach(func(_, e gjson.Result) bool {
		parts = append(parts, e.String())
		return true
	})
	if msg := r.Get("message").String(); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return string(b)
	}
	return strings.Join(parts, ": ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
