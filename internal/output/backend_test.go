package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelHandler chan gesture.PointerOp

func (c channelHandler) Inject(op gesture.PointerOp) error {
	c <- op
	return nil
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Options{Kind: "wayland"})
	assert.Error(t, err)
}

func TestDryRun_Records(t *testing.T) {
	b, err := New(context.Background(), Options{Kind: KindDryRun})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Inject(gesture.MoveRelative(5, 0)))
	require.NoError(t, b.Spawn("workspace-next"))
	assert.True(t, errors.Is(b.Inject(gesture.PointerOp{}), input.ErrInvalidEvent))

	assert.Equal(t, []string{`inject(move(5,0))`, `spawn("workspace-next")`}, b.(*DryRun).Records())
}

func TestHelper_FirstConnectIsFatal(t *testing.T) {
	_, err := New(context.Background(), Options{
		Kind:         KindHelper,
		HelperSocket: filepath.Join(t.TempDir(), "missing.sock"),
		Client:       ipc.ClientOptions{Timeout: time.Second},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestHelper_InjectAndLoseHelper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helper.sock")
	got := make(channelHandler, 16)
	server := ipc.NewSocketServer(path, got, ipc.ServerOptions{Mode: 0600})
	require.NoError(t, server.Start())

	b, err := New(context.Background(), Options{
		Kind:         KindHelper,
		HelperSocket: path,
		Client:       ipc.ClientOptions{Timeout: time.Second, Retries: 1, RetryDelay: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, KindHelper, b.Name())

	require.NoError(t, b.Inject(gesture.ButtonDown(gesture.ButtonLeft)))
	select {
	case op := <-got:
		assert.Equal(t, gesture.ButtonDown(gesture.ButtonLeft), op)
	case <-time.After(2 * time.Second):
		t.Fatal("helper never received the operation")
	}

	server.Stop()
	err = b.Inject(gesture.MoveRelative(1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestNative_Integration(t *testing.T) {
	if os.Getenv("DISPLAY") == "" {
		t.Skip("DISPLAY not set - no X server to inject into")
	}
	b, err := NewNative(NewSpawner(""))
	if err != nil {
		t.Skipf("Cannot connect to X server: %v", err)
	}
	defer b.Close()

	assert.NoError(t, b.Inject(gesture.MoveRelative(1, 0)))
	assert.NoError(t, b.Inject(gesture.MoveRelative(-1, 0)))
}

func TestClampInt16(t *testing.T) {
	assert.Equal(t, int16(32767), clampInt16(100000))
	assert.Equal(t, int16(-32768), clampInt16(-100000))
	assert.Equal(t, int16(-5), clampInt16(-5))
}
