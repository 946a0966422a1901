package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"spimhal/core"
	"spimhal/host/mcu"
	"spimhal/host/serial"
	"spimhal/host/spidev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (status %v)\n", err, core.StatusOf(err))
		os.Exit(1)
	}
}

// app is the state shared by every subcommand
type app struct {
	configPath string
	verbose    bool
	profile    profile
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{profile: defaultProfile()}

	root := &cobra.Command{
		Use:   "spim-host",
		Short: "Drive a SPI master controller",
		Long: "Drive a SPI master controller through the firmware console on a serial\n" +
			"device, or locally on a Linux spidev port. Without a subcommand an\n" +
			"interactive shell is started.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = newLogger(cmd.ErrOrStderr(), a.verbose)
			if a.configPath == "" {
				return nil
			}
			file := defaultProfile()
			if err := loadProfile(a.configPath, &file); err != nil {
				return err
			}
			applyProfile(&a.profile, file, func(name string) bool {
				return cmd.Flags().Changed(name)
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withShell(cmd, func(sh *shell) error {
				return interactive(sh, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML profile with connection settings")
	flags.StringVarP(&a.profile.Device, "device", "d", a.profile.Device, "serial device of the firmware console")
	flags.IntVar(&a.profile.Baud, "baud", a.profile.Baud, "baud rate (ignored for USB CDC)")
	flags.StringVar(&a.profile.SPIDev, "spidev", "", "run locally on this SPI port (e.g. SPI0.0) instead of a device")
	flags.StringSliceVar(&a.profile.CS, "cs", nil, "GPIOs for slave select 0 and 1 (local mode)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log protocol and bus details")

	root.AddCommand(newRunCmd(a), newDictionaryCmd(a))
	root.SetErr(os.Stderr)
	root.SetOut(os.Stdout)
	return root
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <line>...",
		Short: "Run shell lines and exit",
		Example: `  spim-host run "init msb 8" "read 0x9f 1 3"
  spim-host --spidev SPI0.0 --cs GPIO8 run "init 0 8" "write 0x02 4 deadbeef"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withShell(cmd, func(sh *shell) error {
				for _, line := range args {
					if err := sh.Run(line); err != nil && !errors.Is(err, errQuit) {
						return fmt.Errorf("%s: %w", line, err)
					}
				}
				return nil
			})
		},
	}
}

func newDictionaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dictionary",
		Short: "Print the firmware console dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.profile.SPIDev != "" {
				return errors.New("dictionary needs a device connection, not --spidev")
			}
			m, err := a.connectRemote()
			if err != nil {
				return err
			}
			defer m.Close()
			m.PrintDictionary(cmd.OutOrStdout())
			return nil
		},
	}
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
}

// withShell connects, runs the profile's setup lines and hands a shell to fn.
func (a *app) withShell(cmd *cobra.Command, fn func(sh *shell) error) error {
	ctl, err := a.connect()
	if err != nil {
		return err
	}
	defer ctl.Close()

	sh := &shell{ctl: ctl, out: cmd.OutOrStdout()}
	for _, line := range a.profile.Setup {
		a.log.Debug().Str("line", line).Msg("setup")
		if err := sh.Run(line); err != nil {
			return fmt.Errorf("setup %q: %w", line, err)
		}
	}
	return fn(sh)
}

func (a *app) connect() (controller, error) {
	if a.profile.SPIDev != "" {
		return a.connectLocal()
	}
	m, err := a.connectRemote()
	if err != nil {
		return nil, err
	}
	return remote{m: m}, nil
}

func (a *app) connectRemote() (*mcu.MCU, error) {
	m := mcu.NewMCU()
	m.SetLogger(a.log.With().Str("component", "mcu").Logger())
	a.log.Info().Str("device", a.profile.Device).Msg("connecting")

	cfg := serial.DefaultConfig(a.profile.Device)
	cfg.Baud = a.profile.Baud
	if err := m.ConnectWithConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
	}
	return m, nil
}

func (a *app) connectLocal() (controller, error) {
	bus, err := spidev.Open(a.profile.SPIDev, a.profile.CS...)
	if err != nil {
		return nil, err
	}
	busLog := a.log.With().Str("component", "spidev").Logger()
	bus.SetLogger(busLog)
	if a.verbose {
		core.SetDebugWriter(func(s string) { busLog.Debug().Msg(s) })
		core.SetDebugEnabled(true)
	}
	a.log.Info().Str("port", a.profile.SPIDev).Strs("cs", a.profile.CS).Msg("running locally")
	return newLocal(bus, bus.ChipSelect(), bus), nil
}

// interactive reads shell lines until EOF or quit.
func interactive(sh *shell, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		err := sh.Run(strings.TrimSpace(scanner.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v (status %v)\n", err, core.StatusOf(err))
		}
	}
	return scanner.Err()
}
