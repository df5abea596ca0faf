package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"transcription-service/internal/entity"
)

// WhisperConfig selects the whisper.cpp model and the binaries used to run it.
type WhisperConfig struct {
	ModelSize   string
	ModelDir    string
	ModelPath   string // overrides ModelDir/ggml-<ModelSize>.bin
	WhisperPath string
	FFmpegPath  string
	Threads     int
	TempDir     string
}

// Whisper runs whisper.cpp on ffmpeg-normalized audio and streams segment
// progress from its stdout.
type Whisper struct {
	cfg       WhisperConfig
	modelPath string
	logger    *slog.Logger
}

var _ Engine = (*Whisper)(nil)

// NewWhisper resolves the model file and binaries. Any failure is a
// *ModelLoadError.
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) (*Whisper, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.WhisperPath == "" {
		cfg.WhisperPath = "whisper-cli"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	modelPath := ResolveModelPath(cfg)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, &ModelLoadError{Model: modelPath, Err: err}
	}
	for _, bin := range []*string{&cfg.WhisperPath, &cfg.FFmpegPath} {
		resolved, err := exec.LookPath(*bin)
		if err != nil {
			return nil, &ModelLoadError{Model: modelPath, Err: err}
		}
		*bin = resolved
	}

	logger.Info("whisper model ready", "model", modelPath, "threads", cfg.Threads)
	return &Whisper{cfg: cfg, modelPath: modelPath, logger: logger}, nil
}

// ResolveModelPath maps a model size such as "small" to <dir>/ggml-small.bin.
func ResolveModelPath(cfg WhisperConfig) string {
	if p := strings.TrimSpace(cfg.ModelPath); p != "" {
		return p
	}
	size := strings.TrimSpace(cfg.ModelSize)
	if size == "" {
		size = "small"
	}
	return filepath.Join(cfg.ModelDir, "ggml-"+size+".bin")
}

func (w *Whisper) Loaded() bool {
	return w != nil && w.modelPath != ""
}

func (w *Whisper) Transcribe(ctx context.Context, req Request, progress chan<- Progress) (Result, error) {
	if !w.Loaded() {
		return Result{}, ErrModelNotLoaded
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return Result{}, &ProcessingError{Stage: "preprocessing", Message: "cannot access input audio", Err: err}
	}

	tempDir, err := os.MkdirTemp(w.cfg.TempDir, "whisper-*")
	if err != nil {
		return Result{}, &ProcessingError{Stage: "preprocessing", Message: "create workspace", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			w.logger.Warn("remove whisper workspace", "dir", tempDir, "error", err)
		}
	}()

	wavPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	out, err := exec.CommandContext(ctx, w.cfg.FFmpegPath, buildFFmpegArgs(req.InputPath, wavPath)...).CombinedOutput()
	if err != nil {
		return Result{}, &ProcessingError{
			Stage:   "preprocessing",
			Message: "ffmpeg audio conversion failed: " + tail(string(out), 400),
			Err:     err,
		}
	}

	total, err := WAVDuration(wavPath)
	if err != nil {
		w.logger.Warn("audio duration unknown, progress disabled", "input", req.InputPath, "error", err)
		total = 0
	}

	outBase := filepath.Join(tempDir, "transcript")
	cmd := exec.CommandContext(ctx, w.cfg.WhisperPath, buildWhisperArgs(w.modelPath, wavPath, outBase, req.Language, w.cfg.Threads)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &ProcessingError{Stage: "transcribing", Message: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, &ProcessingError{Stage: "transcribing", Message: "stderr pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return Result{}, &ProcessingError{Stage: "transcribing", Message: "start whisper", Err: err}
	}

	diag := &stderrWatcher{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		diag.consume(stderr)
	}()

	var streamed []entity.Segment
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdoutLine)
	for scanner.Scan() {
		seg, ok := parseSegmentLine(scanner.Text())
		if !ok {
			continue
		}
		seg.Index = len(streamed) + 1
		streamed = append(streamed, seg)
		if progress == nil || total <= 0 {
			continue
		}
		msg := Progress{
			Percent:  ComputeProgress(seg.End, total),
			Segments: entity.CloneSegments(streamed),
			Language: diag.language(),
		}
		select {
		case progress <- msg:
		case <-ctx.Done():
		}
	}
	if err := scanner.Err(); err != nil {
		w.logger.Warn("whisper stdout unreadable, segment streaming stopped", "error", err)
	}
	// whisper блокируется на полном пайпе, если не дочитать stdout
	if _, err := io.Copy(io.Discard, stdout); err != nil {
		w.logger.Debug("drain whisper stdout", "error", err)
	}
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return Result{}, &ProcessingError{
			Stage:   "transcribing",
			Message: "whisper failed: " + tail(diag.text(), 400),
			Err:     err,
		}
	}

	segments, lang, err := readWhisperJSON(outBase + ".json")
	if err != nil {
		w.logger.Warn("whisper json output unreadable, using streamed segments", "error", err)
		segments = streamed
	}
	if lang == "" {
		lang = diag.language()
	}
	if lang == "" {
		if hint := normalizeLanguage(req.Language); hint != "" {
			lang = hint
		} else {
			lang = "unknown"
		}
	}
	if segments == nil {
		segments = []entity.Segment{}
	}
	return Result{Segments: segments, Language: lang}, nil
}

// maxStdoutLine bounds one whisper output line; longer output is discarded.
const maxStdoutLine = 1 << 20

var (
	segmentLineRe  = regexp.MustCompile(`^\[(\d+):(\d{2}):(\d{2})[.,](\d{3}) --> (\d+):(\d{2}):(\d{2})[.,](\d{3})\]\s*(.*)$`)
	detectedLangRe = regexp.MustCompile(`auto-detected language:\s*([a-z]{2,3})`)
)

// parseSegmentLine parses "[00:00:01.000 --> 00:00:03.500]  text".
func parseSegmentLine(line string) (entity.Segment, bool) {
	m := segmentLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return entity.Segment{}, false
	}
	start := clockSeconds(m[1], m[2], m[3], m[4])
	end := clockSeconds(m[5], m[6], m[7], m[8])
	if end < start {
		end = start
	}
	return entity.Segment{Start: start, End: end, Text: cleanText(m[9])}, true
}

func clockSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	milli, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(milli)/1000
}

// cleanText trims whitespace and blanks whisper's non-speech markers.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "[BLANK_AUDIO]" {
		return ""
	}
	return s
}

type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func readWhisperJSON(path string) ([]entity.Segment, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var doc whisperJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("decode whisper json: %w", err)
	}
	segments := make([]entity.Segment, 0, len(doc.Transcription))
	for i, t := range doc.Transcription {
		start := float64(t.Offsets.From) / 1000
		end := float64(t.Offsets.To) / 1000
		if end < start {
			end = start
		}
		segments = append(segments, entity.Segment{
			Index: i + 1,
			Start: start,
			End:   end,
			Text:  cleanText(t.Text),
		})
	}
	return segments, doc.Result.Language, nil
}

// stderrWatcher keeps the tail of whisper's diagnostics and the language it
// detected, if any.
type stderrWatcher struct {
	mu       sync.Mutex
	lines    []string
	detected string
}

func (s *stderrWatcher) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdoutLine)
	defer func() { _, _ = io.Copy(io.Discard, r) }()
	for scanner.Scan() {
		line := scanner.Text()
		s.mu.Lock()
		if m := detectedLangRe.FindStringSubmatch(line); m != nil {
			s.detected = m[1]
		}
		s.lines = append(s.lines, line)
		if len(s.lines) > 50 {
			s.lines = s.lines[len(s.lines)-50:]
		}
		s.mu.Unlock()
	}
}

func (s *stderrWatcher) language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detected
}

func (s *stderrWatcher) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func normalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" || lang == "auto" {
		return ""
	}
	return lang
}

// buildFFmpegArgs converts any input to 16 kHz mono PCM, the format whisper.cpp expects.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func buildWhisperArgs(modelPath, audioPath, outBase, language string, threads int) []string {
	lang := normalizeLanguage(language)
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
		"-l", lang,
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
