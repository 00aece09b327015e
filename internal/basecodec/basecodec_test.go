package basecodec

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/doismellburning/buggy-arbiter/internal/control"
	"github.com/doismellburning/buggy-arbiter/internal/listeners"
)

func newTestCodec() (*Codec, *control.Cell, *listeners.Set) {
	mode := &control.Cell{}
	mode.Store(control.Base)
	ls := listeners.New()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return New(mode, ls, logger), mode, ls
}

// fakePort is a tty.Port double that records writes and never blocks on
// reads (tests drive feed directly instead of Run's read loop).
type fakePort struct {
	written [][]byte
}

func (p *fakePort) ReadByte() (byte, error) { return 0, io.EOF }
func (p *fakePort) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	p.written = append(p.written, cp)
	return len(b), nil
}
func (p *fakePort) Close() error { return nil }

func feedAll(c *Codec, port *fakePort, bs []byte) {
	for _, b := range bs {
		_ = c.feed(b, port)
	}
}

// P3: a payload encoded by encodeFrame and fed back through the codec's
// state machine is recovered as a broadcast, modulo the trailing byte the
// original protocol always strips.
func TestCodec_RoundTrip_Broadcast(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 200).Draw(t, "n")
		payload := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "payload")

		c, _, ls := newTestCodec()

		client, server := net.Pipe()
		defer client.Close()
		ls.Add(server)

		want := payload[:len(payload)-1]
		got := make([]byte, len(want))
		readDone := make(chan error, 1)
		go func() {
			_, err := io.ReadFull(client, got)
			readDone <- err
		}()

		frame := encodeFrame(payload)
		port := &fakePort{}
		feedAll(c, port, frame)

		require.NoError(t, <-readDone)
		assert.Equal(t, want, got)
	})
}

func TestCodec_SpecialBase_SwitchesMode(t *testing.T) {
	c, mode, _ := newTestCodec()
	mode.Store(control.Radio)

	port := &fakePort{}
	feedAll(c, port, []byte{frameStart, escape, escSpecial0, frameEnd})

	assert.Equal(t, control.Base, mode.Load())
}

func TestCodec_SpecialRadio_SwitchesMode(t *testing.T) {
	c, mode, _ := newTestCodec()

	port := &fakePort{}
	feedAll(c, port, []byte{frameStart, escape, escSpecial1, frameEnd})

	assert.Equal(t, control.Radio, mode.Load())
}

func TestCodec_SpecialDirective_IgnoredWhileLost(t *testing.T) {
	c, mode, _ := newTestCodec()
	mode.Store(control.Lost)

	port := &fakePort{}
	feedAll(c, port, []byte{frameStart, escape, escSpecial1, frameEnd})

	assert.Equal(t, control.Lost, mode.Load(), "a base directive must not override an active loss of link")
}

func TestCodec_StatusQuery_RepliesWithOneByte(t *testing.T) {
	c, mode, _ := newTestCodec()
	mode.Store(control.Radio)

	port := &fakePort{}
	feedAll(c, port, []byte{frameStart, escape, escSpecial2, frameEnd})

	require.Len(t, port.written, 1)
	assert.Equal(t, encodeFrame([]byte{0x01}), port.written[0])
}

func TestCodec_UnknownSpecialID_IsFatal(t *testing.T) {
	c := &Codec{mode: &control.Cell{}, specialID: 7, special: true}
	port := &fakePort{}
	err := c.handleSpecial(port)
	require.Error(t, err)
}

func TestCodec_EscapedFrameEnd_IsNotAFrameBoundary(t *testing.T) {
	c, _, ls := newTestCodec()
	client, server := net.Pipe()
	defer client.Close()
	ls.Add(server)

	want := []byte{0x41, 0xff}
	got := make([]byte, len(want))
	readDone := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(client, got)
		readDone <- err
	}()

	port := &fakePort{}
	// escaped 0xFF inside the frame must not terminate it; only the real,
	// unescaped frame end does.
	feedAll(c, port, []byte{frameStart, 0x41, escape, escDataEnd, 0x42, frameEnd})

	require.NoError(t, <-readDone)
	assert.Equal(t, want, got)
}

func TestCodec_EmptyAndSingleByteFramesAreNotBroadcast(t *testing.T) {
	c, _, ls := newTestCodec()
	port := &fakePort{}

	client, server := net.Pipe()
	defer client.Close()
	ls.Add(server)

	feedAll(c, port, []byte{frameStart, frameEnd})       // len 0
	feedAll(c, port, []byte{frameStart, 0x01, frameEnd}) // len 1, stripped to 0

	require.NoError(t, client.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err := client.Read(make([]byte, 1))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "a zero or single byte frame must never reach the listener set")
}
