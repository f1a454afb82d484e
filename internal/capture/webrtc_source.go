package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"go.uber.org/zap"
)

// ErrNoPeer is returned by Accept before the stream is opened.
var ErrNoPeer = errors.New("capture stream not open")

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ICEServers converts configured URLs to ICE servers, falling back to a public STUN server.
func ICEServers(urls []string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			out = append(out, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}

// WebRTCSource receives a browser's getDisplayMedia track over WebRTC and
// writes its VP8 frames into IVF chunks. The browser keeps the permission
// prompt; a refused prompt simply never produces an offer.
type WebRTCSource struct {
	config webrtc.Configuration
	logger *zap.Logger

	mu     sync.Mutex
	stream *webrtcStream
}

// NewWebRTCSource creates a source using the given ICE servers.
func NewWebRTCSource(iceServers []webrtc.ICEServer, logger *zap.Logger) *WebRTCSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebRTCSource{config: webrtc.Configuration{ICEServers: iceServers}, logger: logger}
}

// Supports implements Source. Only IVF output is available for RTP ingest.
func (s *WebRTCSource) Supports(mimeType string) bool {
	return BaseMIMEType(mimeType) == "video/x-ivf"
}

// Open creates a receive-only peer connection waiting for the browser's offer.
func (s *WebRTCSource) Open(_ context.Context, mimeType string) (Stream, error) {
	if !s.Supports(mimeType) {
		return nil, ErrUnsupportedEncoding
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp8: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add transceiver: %w", err)
	}

	st := &webrtcStream{
		pc:     pc,
		chunks: make(chan []byte, 256),
		ended:  make(chan struct{}),
		logger: s.logger,
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		go st.readTrack(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("capture peer state", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			st.end()
		}
	})

	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()
	return st, nil
}

// Accept applies the browser's SDP offer and returns the answer once ICE gathering completes.
func (s *WebRTCSource) Accept(ctx context.Context, offerSDP string) (string, error) {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st == nil {
		return "", ErrNoPeer
	}
	pc := st.pc
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

// webrtcStream turns one remote video track into IVF chunks.
type webrtcStream struct {
	pc     *webrtc.PeerConnection
	chunks chan []byte
	ended  chan struct{}
	logger *zap.Logger

	mu       sync.Mutex
	writer   *ivfwriter.IVFWriter
	finished bool
	endOnce  sync.Once
}

func (st *webrtcStream) Chunks() <-chan []byte  { return st.chunks }
func (st *webrtcStream) Ended() <-chan struct{} { return st.ended }

// chunkWriter feeds IVF output into the stream's chunk channel. Callers hold st.mu.
type chunkWriter struct {
	st *webrtcStream
}

func (w chunkWriter) Write(p []byte) (int, error) {
	st := w.st
	if st.finished {
		return 0, io.ErrClosedPipe
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	st.chunks <- chunk
	return len(p), nil
}

func (st *webrtcStream) readTrack(track *webrtc.TrackRemote) {
	st.mu.Lock()
	if st.finished || st.writer != nil {
		st.mu.Unlock()
		return
	}
	w, err := ivfwriter.NewWith(chunkWriter{st: st})
	if err != nil {
		st.mu.Unlock()
		st.logger.Error("create ivf writer failed", zap.Error(err))
		st.end()
		return
	}
	st.writer = w
	st.mu.Unlock()

	st.logger.Info("capture track started", zap.String("codec", track.Codec().MimeType))
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				st.logger.Debug("capture track read stopped", zap.Error(err))
			}
			st.end()
			return
		}
		st.mu.Lock()
		if st.finished {
			st.mu.Unlock()
			return
		}
		if err := st.writer.WriteRTP(pkt); err != nil {
			st.logger.Warn("ivf write failed", zap.Error(err))
		}
		st.mu.Unlock()
	}
}

func (st *webrtcStream) end() {
	st.endOnce.Do(func() { close(st.ended) })
}

// Stop flushes the IVF writer and closes Chunks. The IVF header is written
// when the first track arrives, so a capture with no track yields an empty blob.
func (st *webrtcStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finished {
		return nil
	}
	var err error
	if st.writer != nil {
		err = st.writer.Close()
	}
	st.finished = true
	close(st.chunks)
	return err
}

// Close releases the peer connection.
func (st *webrtcStream) Close() error {
	st.mu.Lock()
	if !st.finished {
		st.finished = true
		close(st.chunks)
	}
	st.mu.Unlock()
	return st.pc.Close()
}
