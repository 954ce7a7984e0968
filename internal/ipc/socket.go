package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/logger"
	"golang.org/x/sys/unix"
)

// DefaultSocketPath is where the helper listens unless configured otherwise
const DefaultSocketPath = "/run/gesturesd/helper.sock"

// handshakeTimeout bounds how long a peer may take to say hello
const handshakeTimeout = 5 * time.Second

// PointerHandler performs the operations received from clients
type PointerHandler interface {
	Inject(op gesture.PointerOp) error
}

// ServerOptions controls who may talk to the helper
type ServerOptions struct {
	// Mode is the permission of the socket file
	Mode os.FileMode
	// Group, if set, owns the socket file
	Group string
	// AllowedUIDs restricts peers by credentials. Empty allows every peer
	// that can open the socket.
	AllowedUIDs []uint32
}

// SocketServer accepts daemon connections and forwards pointer operations
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	opts       ServerOptions
	handler    PointerHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
	conns      map[net.Conn]struct{}
	// serializes injection across connections
	injectMu sync.Mutex
}

// NewSocketServer creates a new socket server
func NewSocketServer(socketPath string, handler PointerHandler, opts ServerOptions) *SocketServer {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if opts.Mode == 0 {
		opts.Mode = 0660
	}
	return &SocketServer{
		socketPath: socketPath,
		opts:       opts,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// SocketPath returns the listening path
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	// Create socket directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	if err := s.applyPermissions(); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("Helper socket server started at %s", s.socketPath)
	return nil
}

func (s *SocketServer) applyPermissions() error {
	if s.opts.Group != "" {
		grp, err := user.LookupGroup(s.opts.Group)
		if err != nil {
			return fmt.Errorf("failed to look up socket group: %w", err)
		}
		gid, err := strconv.Atoi(grp.Gid)
		if err != nil {
			return fmt.Errorf("invalid gid %q: %w", grp.Gid, err)
		}
		if err := os.Chown(s.socketPath, -1, gid); err != nil {
			return fmt.Errorf("failed to set socket group: %w", err)
		}
	}
	if err := os.Chmod(s.socketPath, s.opts.Mode); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return nil
}

// Stop stops the socket server and drops every connection
func (s *SocketServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	// Clean up socket file
	os.RemoveAll(s.socketPath)

	logger.Info("Helper socket server stopped")
}

// acceptConnections accepts and handles incoming connections
func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *SocketServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *SocketServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// handleConnection runs the handshake, then injects every operation received
func (s *SocketServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	if err := s.checkPeer(conn); err != nil {
		logger.Warnf("Rejected helper client: %v", err)
		_ = WriteMessage(conn, NewErrorMessage(err.Error()))
		return
	}

	if err := s.handshake(conn); err != nil {
		logger.Warnf("Helper handshake failed: %v", err)
		return
	}
	logger.Debug("Helper client connected")

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			logger.Debugf("Helper connection closed or read error: %v", err)
			return
		}

		op, err := msg.PointerOp()
		if err != nil {
			logger.Warnf("Ignoring helper message #%d: %v", msg.Seq, err)
			continue
		}

		s.injectMu.Lock()
		err = s.handler.Inject(op)
		s.injectMu.Unlock()
		if err != nil {
			logger.Errorf("Failed to inject %s (#%d): %v", op, msg.Seq, err)
		}
	}
}

func (s *SocketServer) handshake(conn net.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msg, err := ReadMessage(conn)
	if err != nil {
		return err
	}
	if msg.Type != MsgHello {
		err := fmt.Errorf("expected hello, got %s", msg.Type)
		_ = WriteMessage(conn, NewErrorMessage(err.Error()))
		return err
	}
	if msg.Version != ProtocolVersion {
		err := fmt.Errorf("protocol version %d not supported, want %d", msg.Version, ProtocolVersion)
		_ = WriteMessage(conn, NewErrorMessage(err.Error()))
		return err
	}
	return WriteMessage(conn, NewHelloAckMessage())
}

// checkPeer compares the peer credentials against the allowed uids
func (s *SocketServer) checkPeer(conn net.Conn) error {
	if len(s.opts.AllowedUIDs) == 0 {
		return nil
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("not a unix connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return err
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return err
	}
	if credErr != nil {
		return fmt.Errorf("failed to read peer credentials: %w", credErr)
	}

	for _, uid := range s.opts.AllowedUIDs {
		if cred.Uid == uid {
			return nil
		}
	}
	return fmt.Errorf("uid %d is not allowed", cred.Uid)
}
