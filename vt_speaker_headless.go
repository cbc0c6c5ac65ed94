//go:build headless

// vt_speaker_headless.go - silent Speaker stub for the headless build, the
// way video_backend_headless.go stands in for the ebiten backend when
// built with the headless tag.

package main

// Speaker tracks the requested tone frequency without producing audio.
type Speaker struct {
	freq int
}

func NewSpeaker() (*Speaker, error) {
	return &Speaker{}, nil
}

func (s *Speaker) Tone(freqHz int) {
	if freqHz < 0 {
		freqHz = 0
	}
	s.freq = freqHz
}

func (s *Speaker) Close() {}
