// Package basecodec implements the base-station codec activity (B): a
// byte-stuffed framing scheme over the base TTY that either dispatches
// control-mode directives or broadcasts payloads to subscribed listeners,
// per spec §4.3.
package basecodec

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/buggy-arbiter/internal/control"
	"github.com/doismellburning/buggy-arbiter/internal/errkind"
	"github.com/doismellburning/buggy-arbiter/internal/listeners"
	"github.com/doismellburning/buggy-arbiter/internal/tty"
)

// Frame delimiters and escape codes, per §4.3.
const (
	frameStart  = 0x00
	frameEnd    = 0xff
	escape      = 0xaa
	escDataZero = 0xab
	escDataEsc  = 0xac
	escDataEnd  = 0xad
	escSpecial0 = 0xae // mode = Base
	escSpecial1 = 0xaf // mode = Radio
	escSpecial2 = 0xba // status query
)

const maxFrameLen = 4097

// Codec holds the framing state machine for one base TTY.
type Codec struct {
	mode      *control.Cell
	listeners *listeners.Set
	log       *log.Logger

	message   []byte
	reading   bool
	escaped   bool
	special   bool
	specialID int
}

// New builds a base codec that dispatches directives into mode and
// broadcasts payloads to ls.
func New(mode *control.Cell, ls *listeners.Set, logger *log.Logger) *Codec {
	return &Codec{mode: mode, listeners: ls, log: logger}
}

// Run consumes bytes from port until ctx is cancelled or a fatal error
// occurs. It is an activity.Func.
func (c *Codec) Run(ctx context.Context, port tty.Port) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		b, err := port.ReadByte()
		if err != nil {
			if errors.Is(err, tty.ErrTimeout) {
				// Recoverable; framing state is left exactly as-is, per
				// §4.3 — the next 0x00 will recover synchronisation.
				continue
			}
			return errkind.New(errkind.Fatal, err)
		}

		if err := c.feed(b, port); err != nil {
			return err
		}
	}
}

func (c *Codec) feed(b byte, port tty.Port) error {
	if !c.reading {
		if b == frameStart {
			c.message = c.message[:0]
			c.reading = true
			c.escaped = false
			c.special = false
		}
		return nil
	}

	switch b {
	case frameStart:
		c.message = c.message[:0]
		c.escaped = false
		c.special = false
	case escape:
		c.escaped = true
	case frameEnd:
		c.reading = false
		if !c.escaped {
			return c.handleFrameEnd(port)
		}
	default:
		if c.escaped {
			c.escaped = false
			switch b {
			case escDataZero:
				c.message = append(c.message, 0x00)
			case escDataEsc:
				c.message = append(c.message, 0xaa)
			case escDataEnd:
				c.message = append(c.message, 0xff)
			case escSpecial0:
				if !c.special {
					c.special = true
					c.specialID = 0
				}
			case escSpecial1:
				if !c.special {
					c.special = true
					c.specialID = 1
				}
			case escSpecial2:
				if !c.special {
					c.special = true
					c.specialID = 2
				}
			default:
				// Unknown escape: abort the frame. The partial buffer is
				// left in place; the next 0x00 overwrites it.
				c.reading = false
			}
		} else {
			c.message = append(c.message, b)
		}
	}
	return nil
}

func (c *Codec) handleFrameEnd(port tty.Port) error {
	if c.special {
		return c.handleSpecial(port)
	}
	if len(c.message) > 1 && len(c.message) <= maxFrameLen {
		payload := c.message[:len(c.message)-1]
		c.listeners.Broadcast(payload)
		c.log.Debug("base payload broadcast", "len", len(payload))
	}
	return nil
}

func (c *Codec) handleSpecial(port tty.Port) error {
	switch c.specialID {
	case 0:
		for cur := c.mode.Load(); cur != control.Lost; cur = c.mode.Load() {
			if c.mode.CompareAndSwap(cur, control.Base) {
				break
			}
		}
	case 1:
		for cur := c.mode.Load(); cur != control.Lost; cur = c.mode.Load() {
			if c.mode.CompareAndSwap(cur, control.Radio) {
				break
			}
		}
	case 2:
		reply := statusByte(c.mode.Load())
		if _, err := port.Write(encodeFrame([]byte{reply})); err != nil {
			c.log.Debug("status reply write failed", "err", err)
		}
	default:
		return errkind.Newf(errkind.Fatal, "unknown special message id %d", c.specialID)
	}
	return nil
}

func statusByte(m control.Mode) byte {
	switch m {
	case control.Base:
		return 0x00
	case control.Radio:
		return 0x01
	default:
		return 0x02
	}
}

// encodeFrame applies the byte-stuffing rules of §4.3 to payload and
// wraps it between frame delimiters.
func encodeFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, frameStart)
	for _, b := range payload {
		switch b {
		case 0x00:
			out = append(out, escape, escDataZero)
		case 0xaa:
			out = append(out, escape, escDataEsc)
		case 0xff:
			out = append(out, escape, escDataEnd)
		default:
			out = append(out, b)
		}
	}
	out = append(out, frameEnd)
	return out
}
