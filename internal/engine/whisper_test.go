package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeSilentWAV writes a 16-bit mono PCM WAV of the given length.
func writeSilentWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	const rate = 16000
	dataLen := uint32(rate * 2 * seconds)

	var hdr []byte
	put32 := func(v uint32) { hdr = binary.LittleEndian.AppendUint32(hdr, v) }
	put16 := func(v uint16) { hdr = binary.LittleEndian.AppendUint16(hdr, v) }
	hdr = append(hdr, "RIFF"...)
	put32(36 + dataLen)
	hdr = append(hdr, "WAVE"...)
	hdr = append(hdr, "fmt "...)
	put32(16)
	put16(1)
	put16(1)
	put32(rate)
	put32(rate * 2)
	put16(2)
	put16(16)
	hdr = append(hdr, "data"...)
	put32(dataLen)

	body := append(hdr, make([]byte, dataLen)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// newFakeWhisper builds an engine whose ffmpeg copies a 5s silent wav and
// whose whisper prints two segments and writes a json transcript.
func newFakeWhisper(t *testing.T, ffmpegBody string) (*Whisper, string) {
	t.Helper()
	return newFakeWhisperWithStdout(t, ffmpegBody, "")
}

// newFakeWhisperWithStdout runs extraStdout in the whisper script before the
// segment lines are printed.
func newFakeWhisperWithStdout(t *testing.T, ffmpegBody, extraStdout string) (*Whisper, string) {
	t.Helper()
	requireShell(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "source.wav")
	writeSilentWAV(t, src, 5)

	if ffmpegBody == "" {
		ffmpegBody = `for last; do :; done
cp "` + src + `" "$last"
`
	}
	ffmpeg := writeScript(t, dir, "ffmpeg", ffmpegBody)
	whisper := writeScript(t, dir, "whisper", `out=""
lang=""
while [ $# -gt 0 ]; do
  case "$1" in
    -of) out="$2"; shift ;;
    -l) lang="$2"; shift ;;
  esac
  shift
done
echo "lang-arg: $lang" >&2
echo "auto-detected language: de (p = 0.91)" >&2
`+extraStdout+`
echo "[00:00:00.000 --> 00:00:02.000]   Hallo"
echo "[00:00:02.000 --> 00:00:04.000]   Welt"
cat > "$out.json" <<'EOF'
{"result":{"language":"de"},"transcription":[{"offsets":{"from":0,"to":2000},"text":" Hallo"},{"offsets":{"from":2000,"to":4000},"text":" Welt"}]}
EOF
`)
	model := filepath.Join(dir, "ggml-tiny.bin")
	if err := os.WriteFile(model, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	w, err := NewWhisper(WhisperConfig{
		ModelSize:   "tiny",
		ModelDir:    dir,
		WhisperPath: whisper,
		FFmpegPath:  ffmpeg,
		TempDir:     dir,
	}, nil)
	if err != nil {
		t.Fatalf("NewWhisper: %v", err)
	}
	input := filepath.Join(dir, "clip.mp3")
	if err := os.WriteFile(input, []byte("not really mp3"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return w, input
}

func TestWhisper_OverlongStdoutLineDoesNotBlock(t *testing.T) {
	// 2 MB lines overflow both scanners; whisper must still exit
	w, input := newFakeWhisperWithStdout(t, "",
		`head -c 2000000 /dev/zero | tr '\0' 'x'
echo
head -c 2000000 /dev/zero | tr '\0' 'y' >&2
echo "still talking" >&2`)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := w.Transcribe(context.Background(), Request{InputPath: input}, nil)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("Transcribe: %v", out.err)
		}
		if len(out.res.Segments) != 2 || out.res.Language != "de" {
			t.Fatalf("unexpected result %+v", out.res)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Transcribe did not return after an overlong stdout line")
	}
}

func TestWhisper_TranscribeStreamsProgress(t *testing.T) {
	w, input := newFakeWhisper(t, "")

	progress := make(chan Progress)
	var got []Progress
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			got = append(got, p)
		}
	}()

	res, err := w.Transcribe(context.Background(), Request{InputPath: input, Language: "fr"}, progress)
	close(progress)
	<-done
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 progress messages, got %d", len(got))
	}
	if got[0].Percent != 40 || got[1].Percent != 80 {
		t.Fatalf("unexpected progress values: %v, %v", got[0].Percent, got[1].Percent)
	}
	if len(got[1].Segments) != 2 || got[1].Segments[1].Index != 2 {
		t.Fatalf("expected cumulative segments, got %+v", got[1].Segments)
	}

	if res.Language != "de" {
		t.Fatalf("engine language must win over hint, got %q", res.Language)
	}
	if len(res.Segments) != 2 || res.Segments[0].Text != "Hallo" || res.Segments[1].End != 4 {
		t.Fatalf("unexpected segments: %+v", res.Segments)
	}
}

func TestWhisper_FFmpegFailureIsProcessingError(t *testing.T) {
	w, input := newFakeWhisper(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")

	_, err := w.Transcribe(context.Background(), Request{InputPath: input}, nil)
	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if pe.Stage != "preprocessing" || !strings.Contains(pe.Error(), "Invalid data") {
		t.Fatalf("unexpected error: %v", pe)
	}
}

func TestWhisper_NilEngineNotLoaded(t *testing.T) {
	var w *Whisper
	if w.Loaded() {
		t.Fatalf("nil engine must not be loaded")
	}
	if _, err := w.Transcribe(context.Background(), Request{}, nil); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestNewWhisper_MissingModel(t *testing.T) {
	_, err := NewWhisper(WhisperConfig{ModelSize: "large-v3", ModelDir: t.TempDir()}, nil)
	var le *ModelLoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
	if !strings.HasSuffix(le.Model, "ggml-large-v3.bin") {
		t.Fatalf("unexpected model path %q", le.Model)
	}
}

func TestParseSegmentLine(t *testing.T) {
	seg, ok := parseSegmentLine("[00:01:02.500 --> 00:01:04.250]   Bonjour tout le monde")
	if !ok {
		t.Fatalf("expected segment line to parse")
	}
	if seg.Start != 62.5 || seg.End != 64.25 || seg.Text != "Bonjour tout le monde" {
		t.Fatalf("unexpected segment %+v", seg)
	}

	if _, ok := parseSegmentLine("whisper_init_from_file: loading model"); ok {
		t.Fatalf("log line must not parse as a segment")
	}

	blank, ok := parseSegmentLine("[00:00:00.000 --> 00:00:05.000]   [BLANK_AUDIO]")
	if !ok || blank.Text != "" {
		t.Fatalf("blank marker should become empty text, got %+v", blank)
	}
}

func TestComputeProgress(t *testing.T) {
	cases := []struct {
		end, total, want float64
	}{
		{5, 10, 50},
		{12, 10, 100},
		{3, 0, 0},
	}
	for _, c := range cases {
		if got := ComputeProgress(c.end, c.total); got != c.want {
			t.Fatalf("ComputeProgress(%v, %v) = %v, want %v", c.end, c.total, got, c.want)
		}
	}
}

func TestBuildWhisperArgs_AutoLanguage(t *testing.T) {
	args := strings.Join(buildWhisperArgs("m.bin", "a.wav", "out", "", 4), " ")
	if !strings.Contains(args, "-l auto") || !strings.Contains(args, "-t 4") || !strings.Contains(args, "-oj") {
		t.Fatalf("unexpected args: %s", args)
	}
	args = strings.Join(buildWhisperArgs("m.bin", "a.wav", "out", " FR ", 0), " ")
	if !strings.Contains(args, "-l fr") || strings.Contains(args, "-t") {
		t.Fatalf("unexpected args: %s", args)
	}
}

func TestWAVDuration(t *testing.T) {
	p := filepath.Join(t.TempDir(), "five.wav")
	writeSilentWAV(t, p, 5)
	d, err := WAVDuration(p)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if d != 5 {
		t.Fatalf("expected 5s, got %v", d)
	}
}
