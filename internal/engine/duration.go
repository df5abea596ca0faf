package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// WAVDuration returns the length in seconds of a PCM WAV file as its frame
// count divided by its sample rate.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, errors.New("not a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("seek pcm: %w", err)
	}

	frameSize := int64(d.NumChans) * int64(d.BitDepth/8)
	if frameSize <= 0 || d.SampleRate == 0 {
		return 0, fmt.Errorf("unsupported wav layout: chans=%d bits=%d rate=%d", d.NumChans, d.BitDepth, d.SampleRate)
	}
	frames := d.PCMLen() / frameSize
	return float64(frames) / float64(d.SampleRate), nil
}
