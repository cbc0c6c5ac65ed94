//go:build !headless

// vt_speaker.go - PC speaker tone queue (§6 "KIOCSOUND/KDMKTONE"), adapted
// from the teacher's OtoPlayer (audio_backend_oto.go): the same
// oto.Context + io.Reader player pattern, synthesizing a continuous square
// wave at the requested frequency instead of draining a sound chip's ring
// buffer.

package main

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

const speakerSampleRate = 44100

// Speaker is the tone queue KIOCSOUND/KDMKTONE address: a frequency of 0
// silences it, any other value (re)starts a square wave at that pitch.
type Speaker struct {
	ctx    *oto.Context
	player *oto.Player

	freq  atomic.Int64 // Hz; 0 means silent
	phase float64

	mu      sync.Mutex
	started bool
}

func NewSpeaker() (*Speaker, error) {
	op := &oto.NewContextOptions{
		SampleRate:   speakerSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	s := &Speaker{ctx: ctx}
	s.player = ctx.NewPlayer(s)
	return s, nil
}

// Read implements io.Reader for oto.Player: it is pulled continuously once
// playing, synthesizing silence whenever freq is 0.
func (s *Speaker) Read(p []byte) (int, error) {
	numSamples := len(p) / 4
	if numSamples == 0 {
		return 0, nil
	}
	samples := make([]float32, numSamples)
	if freq := s.freq.Load(); freq > 0 {
		step := float64(freq) / float64(speakerSampleRate)
		for i := range samples {
			if s.phase < 0.5 {
				samples[i] = 0.25
			} else {
				samples[i] = -0.25
			}
			s.phase += step
			if s.phase >= 1 {
				s.phase -= 1
			}
		}
	}
	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

// Tone starts (or retunes) the speaker at freqHz; freqHz <= 0 silences it
// without stopping the underlying player.
func (s *Speaker) Tone(freqHz int) {
	if freqHz < 0 {
		freqHz = 0
	}
	s.freq.Store(int64(freqHz))

	s.mu.Lock()
	defer s.mu.Unlock()
	if freqHz > 0 && !s.started {
		s.player.Play()
		s.started = true
	}
}

func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
}
