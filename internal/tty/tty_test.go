package tty

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPtyPair opens a pty master/slave pair so tests exercise TTY's
// read-one-byte-with-timeout loop against a real character device,
// standing in for /dev/ttyACM0 or /dev/ttyUSB0.
func openPtyPair(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave
}

func TestTTY_ReadByte_DeliversWrittenBytes(t *testing.T) {
	master, slave := openPtyPair(t)

	port := Wrap("test", slave, time.Second)
	defer port.Close()

	_, err := master.Write([]byte{0x42})
	require.NoError(t, err)

	b, err := port.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
}

func TestTTY_ReadByte_TimesOut(t *testing.T) {
	_, slave := openPtyPair(t)

	port := Wrap("test", slave, 20*time.Millisecond)
	defer port.Close()

	_, err := port.ReadByte()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTTY_Write(t *testing.T) {
	master, slave := openPtyPair(t)

	port := Wrap("test", slave, time.Second)
	defer port.Close()

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		n, _ := master.Read(buf)
		readDone <- buf[:n]
	}()

	n, err := port.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, <-readDone)
}

func TestTTY_ReadByte_ReportsCloseAsError(t *testing.T) {
	master, slave := openPtyPair(t)
	port := Wrap("test", slave, time.Second)
	defer port.Close()

	master.Close()

	_, err := port.ReadByte()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestExists(t *testing.T) {
	assert.True(t, Exists("/proc/self"))
	assert.False(t, Exists("/no/such/path/at/all"))
}
