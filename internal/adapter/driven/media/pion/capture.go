package pion

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var ErrCaptureUnavailable = errors.New("local capture unavailable")

const audioFrame = 20 * time.Millisecond

// opus TOC byte for a 20ms silent frame
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Capture is a local audio/video source. The audio track is fed with Opus
// silence; video samples are pushed by whatever source is attached through
// WriteVideo.
type Capture struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	muted  atomic.Bool
	paused atomic.Bool

	mu      sync.Mutex
	senders []boundSender

	stop chan struct{}
	once sync.Once
}

type boundSender struct {
	sender *webrtc.RTPSender
	kind   webrtc.RTPCodecType
}

func newCapture(streamID string) (*Capture, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, err
	}
	c := &Capture{
		audio: audio,
		video: video,
		stop:  make(chan struct{}),
	}
	go c.feedAudio()
	return c, nil
}

func (c *Capture) feedAudio() {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.muted.Load() {
				continue
			}
			if err := c.audio.WriteSample(media.Sample{Data: opusSilence, Duration: audioFrame}); err != nil {
				log.Debug().Err(err).Msg("Audio sample dropped")
			}
		}
	}
}

// WriteVideo sends one encoded VP8 frame unless video is paused.
func (c *Capture) WriteVideo(s media.Sample) error {
	if c.paused.Load() {
		return nil
	}
	return c.video.WriteSample(s)
}

func (c *Capture) Mute(muted bool) error {
	c.muted.Store(muted)
	return c.replace(c.audio, muted)
}

func (c *Capture) Pause(paused bool) error {
	c.paused.Store(paused)
	return c.replace(c.video, paused)
}

func (c *Capture) Stop() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// replace detaches or reattaches track on every sender bound to its kind.
func (c *Capture) replace(track *webrtc.TrackLocalStaticSample, off bool) error {
	c.mu.Lock()
	bound := append([]boundSender(nil), c.senders...)
	c.mu.Unlock()

	var next webrtc.TrackLocal
	if !off {
		next = track
	}
	var errs []error
	for _, b := range bound {
		if b.kind != track.Kind() {
			continue
		}
		if err := b.sender.ReplaceTrack(next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// attach adds both tracks to pc, honouring the current mute and pause state.
func (c *Capture) attach(pc *webrtc.PeerConnection) ([]*webrtc.RTPSender, error) {
	var senders []*webrtc.RTPSender
	var bound []boundSender
	for _, track := range []*webrtc.TrackLocalStaticSample{c.audio, c.video} {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return nil, err
		}
		senders = append(senders, sender)
		bound = append(bound, boundSender{sender: sender, kind: track.Kind()})
	}

	c.mu.Lock()
	c.senders = append(c.senders, bound...)
	c.mu.Unlock()

	if c.muted.Load() {
		_ = c.replace(c.audio, true)
	}
	if c.paused.Load() {
		_ = c.replace(c.video, true)
	}
	return senders, nil
}

func (c *Capture) detach(senders []*webrtc.RTPSender) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.senders[:0]
	for _, b := range c.senders {
		drop := false
		for _, s := range senders {
			if b.sender == s {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, b)
		}
	}
	c.senders = kept
}
