package openaistt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/forPelevin/editclick/internal/types"
)

const requestTimeout = 10 * time.Minute

// Adapter transcribes through the OpenAI audio API, asking for verbose
// JSON with segment and word timestamps.
type Adapter struct {
	client   openai.Client
	model    openai.AudioModel
	language string
}

func New(apiKey, baseURL, model, language string, opts ...option.RequestOption) *Adapter {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	m := openai.AudioModel(model)
	if model == "" {
		m = openai.AudioModelWhisper1
	}
	if language == "auto" {
		language = ""
	}
	return &Adapter{client: openai.NewClient(clientOpts...), model: m, language: language}
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, _ string) (types.Transcript, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return types.Transcript{}, err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  a.model,
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	}
	if a.language != "" {
		params.Language = openai.String(a.language)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}
	return parseVerbose(resp.RawJSON())
}

// parseVerbose converts a verbose_json transcription. Word timestamps come
// back as one flat list and are assigned to the segment holding their
// midpoint.
func parseVerbose(raw string) (types.Transcript, error) {
	if !gjson.Valid(raw) {
		return types.Transcript{}, fmt.Errorf("openai transcription: invalid JSON response")
	}
	r := gjson.Parse(raw)
	tr := types.Transcript{
		Text:     strings.TrimSpace(r.Get("text").String()),
		Language: r.Get("language").String(),
	}
	r.Get("segments").ForEach(func(_, s gjson.Result) bool {
		seg := types.Segment{
			ID:    int(s.Get("id").Int()),
			Start: s.Get("start").Float(),
			End:   s.Get("end").Float(),
			Text:  strings.TrimSpace(s.Get("text").String()),
		}
		if seg.Text != "" && seg.End > seg.Start {
			tr.Segments = append(tr.Segments, seg)
		}
		return true
	})

	i := 0
	r.Get("words").ForEach(func(_, w gjson.Result) bool {
		word := types.Word{
			Start: w.Get("start").Float(),
			End:   w.Get("end").Float(),
			Word:  strings.TrimSpace(w.Get("word").String()),
		}
		if word.Word == "" {
			return true
		}
		mid := (word.Start + word.End) / 2
		for i < len(tr.Segments) && mid >= tr.Segments[i].End {
			i++
		}
		if i == len(tr.Segments) {
			return false
		}
		if mid >= tr.Segments[i].Start {
			tr.Segments[i].Words = append(tr.Segments[i].Words, word)
		}
		return true
	})
	return tr, nil
}
