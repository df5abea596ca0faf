// cmd/transcribe/main.go
//
// Offline one-shot transcription: transcribe -audio talk.mp3 -output talk.srt
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"transcription-service/internal/caption"
	"transcription-service/internal/config"
	"transcription-service/internal/engine"
)

func main() {
	var (
		audio     = flag.String("audio", "", "audio file path or http(s) URL")
		output    = flag.String("output", "", "output .srt path (default: <audio base>.srt)")
		language  = flag.String("language", "", "language hint, e.g. en; empty to auto-detect")
		model     = flag.String("model", config.EnvOr("MODEL_SIZE", "small"), "whisper model size: tiny|base|small|medium|large-v3")
		modelDir  = flag.String("model-dir", config.EnvOr("MODEL_DIR", "models"), "directory holding ggml-<size>.bin")
		whisper   = flag.String("whisper", config.EnvOr("WHISPER_PATH", "whisper-cli"), "whisper.cpp binary")
		ffmpeg    = flag.String("ffmpeg", config.EnvOr("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary")
		threads   = flag.Int("threads", config.EnvIntOr("WHISPER_THREADS", 0), "inference threads (0 = whisper default)")
		logLevel  = flag.String("log-level", "info", "debug|info|warn|error")
		dlTimeout = flag.Duration("download-timeout", 10*time.Minute, "timeout for URL downloads")
	)
	flag.Parse()

	level, err := config.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *audio == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.NewWhisper(engine.WhisperConfig{
		ModelSize:   *model,
		ModelDir:    *modelDir,
		WhisperPath: *whisper,
		FFmpegPath:  *ffmpeg,
		Threads:     *threads,
	}, logger)
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, eng, *audio, *output, *language, *dlTimeout, logger); err != nil {
		logger.Error("transcription failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, eng engine.Engine, audio, output, language string, dlTimeout time.Duration, logger *slog.Logger) error {
	input := audio
	downloaded := false
	if isURL(audio) {
		dctx, cancel := context.WithTimeout(ctx, dlTimeout)
		p, err := download(dctx, audio)
		cancel()
		if err != nil {
			return fmt.Errorf("download %s: %w", audio, err)
		}
		input, downloaded = p, true
		logger.Info("downloaded audio", "url", audio, "path", p)
	}

	if output == "" {
		output = defaultOutput(audio)
	}

	progress := make(chan engine.Progress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			logger.Info("progress", "percent", fmt.Sprintf("%.1f", p.Percent), "segments", len(p.Segments), "language", p.Language)
		}
	}()

	start := time.Now()
	res, err := eng.Transcribe(ctx, engine.Request{InputPath: input, Language: language}, progress)
	close(progress)
	<-done
	if err != nil {
		if downloaded {
			// оставляем скачанный файл для разбора
			logger.Warn("keeping downloaded audio for inspection", "path", input)
		}
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := caption.Write(f, res.Segments); err != nil {
		_ = f.Close()
		return fmt.Errorf("write srt: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	if downloaded {
		if err := os.Remove(input); err != nil {
			logger.Warn("remove downloaded audio", "path", input, "error", err)
		}
	}

	logger.Info("done",
		"output", output,
		"segments", len(res.Segments),
		"language", res.Language,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// download streams the URL into a temp file that keeps the URL's extension.
func download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	f, err := os.CreateTemp("", "transcribe-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func defaultOutput(audio string) string {
	name := audio
	if isURL(audio) {
		if u, err := url.Parse(audio); err == nil {
			name = path.Base(u.Path)
		}
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "transcription"
	}
	return base + ".srt"
}
