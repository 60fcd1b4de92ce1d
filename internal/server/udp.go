package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/protocol"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/session"
)

// IngestServer receives PCM frames over UDP and feeds them to the active
// recording session. Frames are decoded on a single processor goroutine so
// audio reaches the capture buffer in arrival order.
type IngestServer struct {
	conn     *net.UDPConn
	config   *config.ServerConfig
	logger   *slog.Logger
	sessions *session.Manager
	metrics  *metrics.Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	recvWG   sync.WaitGroup
	procWG   sync.WaitGroup
	stopOnce sync.Once

	frameChan chan []byte

	framesReceived uint64
	framesInvalid  uint64
	framesDropped  uint64
	lastSeq        uint32
	seqGaps        uint64
	mu             sync.RWMutex
}

// NewIngestServer creates a UDP ingest server
func NewIngestServer(cfg *config.ServerConfig, sessions *session.Manager,
	m *metrics.Metrics, logger *slog.Logger) *IngestServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &IngestServer{
		config:    cfg,
		logger:    logger,
		sessions:  sessions,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		frameChan: make(chan []byte, cfg.QueueSize),
	}
}

// Start begins listening for UDP frames
func (s *IngestServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP ingest server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// Single processor keeps frames ordered all the way to the buffer
	s.procWG.Add(1)
	go s.frameProcessor()

	s.recvWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the ingest server. Safe to call more than once.
func (s *IngestServer) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping UDP ingest server...")

		s.cancel()

		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
			}
		}

		// The receiver must be gone before the frame channel closes
		s.recvWG.Wait()
		close(s.frameChan)
		s.procWG.Wait()

		s.mu.RLock()
		received := s.framesReceived
		invalid := s.framesInvalid
		dropped := s.framesDropped
		s.mu.RUnlock()

		s.logger.Info("UDP ingest server stopped",
			slog.Uint64("frames_received", received),
			slog.Uint64("frames_invalid", invalid),
			slog.Uint64("frames_dropped", dropped),
		)
	})
	return nil
}

// LocalAddr returns the bound UDP address, or nil before Start
func (s *IngestServer) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// receiveLoop reads datagrams off the socket and queues them for decoding
func (s *IngestServer) receiveLoop() {
	defer s.recvWG.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline lets the loop notice context cancellation
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP frame", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.framesReceived++
		s.mu.Unlock()
		s.metrics.RecordFrameReceived()

		// Buffer is reused on the next read
		data := make([]byte, n)
		copy(data, buffer[:n])

		select {
		case s.frameChan <- data:
		default:
			s.mu.Lock()
			s.framesDropped++
			s.mu.Unlock()
			s.metrics.RecordFrameDropped()

			s.logger.Warn("Frame queue full, dropping frame",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("frame_size", n),
			)
		}
	}
}

// frameProcessor decodes queued frames and pushes samples to the session
func (s *IngestServer) frameProcessor() {
	defer s.procWG.Done()

	for data := range s.frameChan {
		s.handleFrame(data)
	}
}

// handleFrame validates one datagram and feeds its audio to the recorder
func (s *IngestServer) handleFrame(data []byte) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		s.mu.Lock()
		s.framesInvalid++
		s.mu.Unlock()
		s.metrics.RecordFrameInvalid()

		s.logger.Debug("Discarding invalid frame",
			slog.Int("frame_size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.trackSequence(frame.Header.Seq)

	samples, err := audio.PCM16BytesToFloat32(frame.Payload)
	if err != nil {
		s.mu.Lock()
		s.framesInvalid++
		s.mu.Unlock()
		s.metrics.RecordFrameInvalid()

		s.logger.Debug("Discarding frame with bad payload",
			slog.String("header", frame.Header.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.sessions.PushSamples(samples)
}

// trackSequence counts gaps in the sender's sequence numbers. Gaps are
// informational only; missing audio simply shortens the meeting timeline.
func (s *IngestServer) trackSequence(seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSeq != 0 && seq > s.lastSeq+1 {
		s.seqGaps++
		s.logger.Debug("Sequence gap detected",
			slog.Uint64("expected", uint64(s.lastSeq+1)),
			slog.Uint64("got", uint64(seq)),
		)
	}
	if seq > s.lastSeq {
		s.lastSeq = seq
	}
}

// IngestStats represents ingest performance counters
type IngestStats struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesInvalid  uint64 `json:"frames_invalid"`
	FramesDropped  uint64 `json:"frames_dropped"`
	SequenceGaps   uint64 `json:"sequence_gaps"`
	QueueDepth     uint64 `json:"queue_depth"`
	QueueCapacity  uint64 `json:"queue_capacity"`
}

// GetStats returns current ingest statistics
func (s *IngestServer) GetStats() IngestStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return IngestStats{
		FramesReceived: s.framesReceived,
		FramesInvalid:  s.framesInvalid,
		FramesDropped:  s.framesDropped,
		SequenceGaps:   s.seqGaps,
		QueueDepth:     uint64(len(s.frameChan)),
		QueueCapacity:  uint64(cap(s.frameChan)),
	}
}
