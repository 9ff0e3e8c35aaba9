package client

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaProvider hands the session its local capture tracks. Acquisition is
// asynchronous, cancellable and fallible; hardware capture belongs to the
// embedding application, which supplies its own provider.
type MediaProvider interface {
	Acquire(ctx context.Context) ([]webrtc.TrackLocal, error)
	Release()
}

// StaticMedia is the default provider: one audio and one video sample track
// with no device behind them. Embedders feed samples in from their capture
// pipeline, or replace the provider wholesale.
type StaticMedia struct {
	Audio *webrtc.TrackLocalStaticSample
	Video *webrtc.TrackLocalStaticSample
}

func NewStaticMedia() (*StaticMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "famicall",
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "famicall",
	)
	if err != nil {
		return nil, err
	}
	return &StaticMedia{Audio: audio, Video: video}, nil
}

func (m *StaticMedia) Acquire(ctx context.Context) ([]webrtc.TrackLocal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []webrtc.TrackLocal{m.Audio, m.Video}, nil
}

func (m *StaticMedia) Release() {}
