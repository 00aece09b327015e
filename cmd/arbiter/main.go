// Command arbiter mediates between the onboard script, the base station
// and the RC controller, forwarding motor commands to the microcontroller
// and guaranteeing a safe neutral state whenever the RC link is lost.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/buggy-arbiter/internal/basecodec"
	"github.com/doismellburning/buggy-arbiter/internal/emitter"
	"github.com/doismellburning/buggy-arbiter/internal/radio"
	"github.com/doismellburning/buggy-arbiter/internal/scriptfifo"
	"github.com/doismellburning/buggy-arbiter/internal/socketsvc"
	"github.com/doismellburning/buggy-arbiter/internal/state"
	"github.com/doismellburning/buggy-arbiter/internal/supervisor"
	"github.com/doismellburning/buggy-arbiter/internal/tty"
)

func main() {
	var (
		arduinoDevice = pflag.String("arduino-tty", "/dev/ttyACM0", "Microcontroller TTY device")
		arduinoBaud   = pflag.Int("arduino-baud", 230400, "Microcontroller TTY baud rate")
		baseDevice    = pflag.String("base-tty", "/dev/ttyUSB0", "Base station TTY device")
		baseBaud      = pflag.Int("base-baud", 57600, "Base station TTY baud rate")
		socketPath    = pflag.String("socket", "/var/run/buggy/arbiter.sock", "UNIX-domain socket path for base payload subscribers")
		fifoPath      = pflag.String("fifo", "/var/run/buggy/arbiter.fifo", "Named pipe path for onboard script commands")
		verbose       = pflag.BoolP("verbose", "v", false, "Enable debug logging")
		help          = pflag.Bool("help", false, "Display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - arbiter between script, base station and RC controller.\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(runConfig{
		arduinoDevice: *arduinoDevice,
		arduinoBaud:   *arduinoBaud,
		baseDevice:    *baseDevice,
		baseBaud:      *baseBaud,
		socketPath:    *socketPath,
		fifoPath:      *fifoPath,
	}, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runConfig struct {
	arduinoDevice string
	arduinoBaud   int
	baseDevice    string
	baseBaud      int
	socketPath    string
	fifoPath      string
}

// arduinoReadTimeout and baseReadTimeout are the per-byte TTY read
// timeouts from spec §6.
const (
	arduinoReadTimeout = 1 * time.Second
	baseReadTimeout    = 100 * time.Millisecond
)

func run(cfg runConfig, logger *log.Logger) error {
	arduino, err := tty.Open(cfg.arduinoDevice, cfg.arduinoBaud, arduinoReadTimeout)
	if err != nil {
		return fmt.Errorf("opening microcontroller tty %q: %w", cfg.arduinoDevice, err)
	}
	defer arduino.Close()

	base, err := tty.Open(cfg.baseDevice, cfg.baseBaud, baseReadTimeout)
	if err != nil {
		return fmt.Errorf("opening base tty %q: %w", cfg.baseDevice, err)
	}
	defer base.Close()

	shared := state.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(shared, logger)

	sup.Start(ctx, "emitter", func(ctx context.Context) error {
		return emitter.Run(ctx, arduino, shared.Queue, logger.With("activity", "emitter"))
	})

	radioDecoder := radio.New(&shared.Mode, shared.Queue, logger.With("activity", "radio"))
	sup.Start(ctx, "radio", func(ctx context.Context) error {
		return radioDecoder.Run(ctx, arduino)
	})

	codec := basecodec.New(&shared.Mode, shared.Listeners, logger.With("activity", "base"))
	sup.Start(ctx, "base", func(ctx context.Context) error {
		return codec.Run(ctx, base)
	})

	sup.Start(ctx, "socket", func(ctx context.Context) error {
		return socketsvc.Run(ctx, cfg.socketPath, shared.Listeners, logger.With("activity", "socket"))
	})

	sup.Start(ctx, "script", func(ctx context.Context) error {
		return scriptfifo.Run(ctx, cfg.fifoPath, &shared.Mode, shared.Queue, logger.With("activity", "script"))
	})

	return sup.Wait(cancel)
}
