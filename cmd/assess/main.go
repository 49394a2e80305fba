// Command assess runs the examiner over a saved interview transcript and
// prints the structured report, for grading recorded sessions offline and for
// iterating on the rubric without a live interview.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/speaklevel/interview-gateway/internal/assess"
	"github.com/speaklevel/interview-gateway/internal/prompts"
)

func main() {
	file := flag.String("file", "", "transcript file, one 'speaker: text' line per turn")
	model := flag.String("model", envOr("ASSESS_MODEL", "gpt-4o"), "examiner model")
	maxTokens := flag.Int("max-tokens", 2000, "examiner response token budget")
	summary := flag.Bool("summary", false, "also print the verbal summary")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: assess --file ./transcript.txt")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	transcript, err := loadTranscript(*file)
	if err != nil {
		slog.Error("load transcript", "file", *file, "error", err)
		os.Exit(1)
	}
	if len(transcript) == 0 {
		fmt.Fprintln(os.Stderr, "no turns found in", *file)
		os.Exit(1)
	}

	generator := assess.NewGenerator(*model, *maxTokens, prompts.AssessmentRubric())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := generator.Generate(ctx, transcript)
	if err != nil {
		slog.Error("generate report", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)

	if *summary {
		fmt.Println(assess.VerbalSummary(report))
	}
}

// loadTranscript parses "speaker: text" lines. Blank lines and lines without
// a speaker prefix are skipped.
func loadTranscript(path string) ([]assess.TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var transcript []assess.TranscriptEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		speaker, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		transcript = append(transcript, assess.TranscriptEntry{
			Speaker: strings.TrimSpace(strings.ToLower(speaker)),
			Text:    strings.TrimSpace(text),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return transcript, nil
}

func envOr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
