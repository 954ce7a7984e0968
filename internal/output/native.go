package output

import (
	"fmt"
	"math"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"
	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
)

// Native injects pointer events into the X server through XTEST
type Native struct {
	*Spawner

	mu   sync.Mutex
	xu   *xgbutil.XUtil
	conn *xgb.Conn
	root xproto.Window
}

// NewNative connects to $DISPLAY and checks for the XTEST extension
func NewNative(spawner *Spawner) (*Native, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot connect to X display: %v", ErrBackendUnavailable, err)
	}
	if err := xtest.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("%w: XTEST extension unavailable: %v", ErrBackendUnavailable, err)
	}

	logger.Debugf("Connected to X display, root window 0x%x", xu.RootWin())
	return &Native{
		Spawner: spawner,
		xu:      xu,
		conn:    xu.Conn(),
		root:    xu.RootWin(),
	}, nil
}

// Name implements Backend
func (n *Native) Name() string {
	return KindNative
}

// x11Button maps pointer buttons to core protocol button numbers
func x11Button(b gesture.Button) byte {
	switch b {
	case gesture.ButtonMiddle:
		return 2
	case gesture.ButtonRight:
		return 3
	default:
		return 1
	}
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Inject implements Backend
func (n *Native) Inject(op gesture.PointerOp) error {
	if err := input.ValidateOp(op); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return fmt.Errorf("%w: connection closed", ErrBackendUnavailable)
	}

	var err error
	switch op.Type {
	case gesture.OpMove:
		if op.DX == 0 && op.DY == 0 {
			return nil
		}
		// detail 1 makes the motion relative to the current position
		err = xtest.FakeInputChecked(n.conn, xproto.MotionNotify, 1, 0, n.root,
			clampInt16(op.DX), clampInt16(op.DY), 0).Check()
	case gesture.OpButtonDown:
		err = xtest.FakeInputChecked(n.conn, xproto.ButtonPress, x11Button(op.Button), 0, n.root, 0, 0, 0).Check()
	case gesture.OpButtonUp:
		err = xtest.FakeInputChecked(n.conn, xproto.ButtonRelease, x11Button(op.Button), 0, n.root, 0, 0, 0).Check()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close implements Backend
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	return nil
}
