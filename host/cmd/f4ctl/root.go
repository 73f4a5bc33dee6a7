package main

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"f4periph/core"
	"f4periph/host/config"
	"f4periph/host/logging"
	"f4periph/host/mcu"
	"f4periph/protocol"
)

const (
	ConfigOptionName   = "config"
	DeviceOptionName   = "device"
	BaudOptionName     = "baud"
	LogLevelOptionName = "log-level"
)

// session carries what every subcommand needs.
type session struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// client dials the board; the caller closes it.
func (s *session) client() (*mcu.Client, error) {
	return mcu.Dial(s.cfg, s.logger)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var (
		configPath, device, logLevel string
		baud                         int
	)
	s := &session{cfg: config.NewDefaultConfig()}

	cmd := &cobra.Command{
		Use:           "f4ctl",
		Short:         "Drive the peripherals of an f4periph board",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				s.cfg.SetPath(configPath)
			}
			if err := s.cfg.Load(); err != nil {
				return err
			}
			if device != "" {
				s.cfg.Serial.Device = device
			}
			if baud != 0 {
				s.cfg.Serial.Baud = baud
			}
			if logLevel != "" {
				s.cfg.LogLevel = logLevel
			}
			logger, err := logging.NewLogger(cmd.ErrOrStderr(), s.cfg.LogLevel, "f4ctl")
			if err != nil {
				return err
			}
			s.logger = logger
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, ConfigOptionName, "", "Config file (default "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().StringVar(&device, DeviceOptionName, "", "Serial device")
	cmd.PersistentFlags().IntVar(&baud, BaudOptionName, 0, "Baud rate")
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "", "Log level. "+logging.HelpLevels)

	cmd.AddCommand(
		newIdentifyCommand(s),
		newGPIOCommand(s),
		newSPICommand(s),
		newADCCommand(s),
		newWatchCommand(s),
		newTraceCommand(s),
		newConfigCommand(s),
	)
	return cmd
}

// withClient runs fn against a freshly dialed board.
func withClient(s *session, fn func(ctx context.Context, c *mcu.Client) error) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(context.Background(), c)
}

func parseID(arg, what string) (uint8, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "%s id %q", what, arg)
	}
	return uint8(v), nil
}

func newIdentifyCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Show the board's identity and resource counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				id, err := c.Identify(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("board %s (protocol %s)\n", id.Board, id.Version)
				cmd.Printf("pins %d  streams %d  buses %d  adcs %d  channels %d\n",
					id.Pins, id.Streams, id.Buses, id.ADCs, id.Channels)
				return nil
			})
		},
	}
}

func newGPIOCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{Use: "gpio", Short: "Read and drive logical pins"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "read PIN",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pin, err := parseID(args[0], "pin")
				if err != nil {
					return err
				}
				return withClient(s, func(ctx context.Context, c *mcu.Client) error {
					high, err := c.GPIORead(ctx, pin)
					if err != nil {
						return err
					}
					cmd.Println(high)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:  "write PIN 0|1",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pin, err := parseID(args[0], "pin")
				if err != nil {
					return err
				}
				high, err := strconv.ParseBool(args[1])
				if err != nil {
					return err
				}
				return withClient(s, func(ctx context.Context, c *mcu.Client) error {
					return c.GPIOWrite(ctx, pin, high)
				})
			},
		},
		&cobra.Command{
			Use:  "toggle PIN",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pin, err := parseID(args[0], "pin")
				if err != nil {
					return err
				}
				return withClient(s, func(ctx context.Context, c *mcu.Client) error {
					return c.GPIOToggle(ctx, pin)
				})
			},
		},
	)
	return cmd
}

func newSPICommand(s *session) *cobra.Command {
	var keepSelected bool
	cmd := &cobra.Command{Use: "spi", Short: "Transfer on an SPI bus"}

	transact := func(bus uint8, fn func(ctx context.Context, c *mcu.Client) error) error {
		return withClient(s, func(ctx context.Context, c *mcu.Client) error {
			if err := c.SPISelect(ctx, bus); err != nil {
				return err
			}
			err := fn(ctx, c)
			if keepSelected {
				return err
			}
			if derr := c.SPIDeselect(ctx, bus); err == nil {
				err = derr
			}
			return err
		})
	}

	write := &cobra.Command{
		Use:   "write BUS HEX",
		Short: "Select, write bytes, deselect",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := parseID(args[0], "bus")
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(args[1])
			if err != nil {
				return errors.Wrap(err, "payload")
			}
			return transact(bus, func(ctx context.Context, c *mcu.Client) error {
				return c.SPIWrite(ctx, bus, data)
			})
		},
	}
	read := &cobra.Command{
		Use:   "read BUS COUNT",
		Short: "Select, read bytes, deselect",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := parseID(args[0], "bus")
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			return transact(bus, func(ctx context.Context, c *mcu.Client) error {
				data, err := c.SPIRead(ctx, bus, n)
				if err != nil {
					return err
				}
				cmd.Println(hex.EncodeToString(data))
				return nil
			})
		},
	}
	cmd.PersistentFlags().BoolVar(&keepSelected, "keep-selected", false, "Leave chip select asserted")
	cmd.AddCommand(write, read)
	return cmd
}

func newADCCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{Use: "adc", Short: "Start and read conversions"}
	start := &cobra.Command{
		Use:  "start ADC",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adc, err := parseID(args[0], "adc")
			if err != nil {
				return err
			}
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				return c.ADCStart(ctx, adc)
			})
		},
	}
	value := &cobra.Command{
		Use:  "value CHANNEL",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseID(args[0], "channel")
			if err != nil {
				return err
			}
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				v, gen, err := c.ADCValue(ctx, ch)
				if err != nil {
					return err
				}
				cmd.Printf("%d (sequence %d)\n", v, gen)
				return nil
			})
		},
	}
	var period time.Duration
	query := &cobra.Command{
		Use:   "query CHANNEL",
		Short: "Sample a channel periodically; a zero period cancels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseID(args[0], "channel")
			if err != nil {
				return err
			}
			ticks := core.TimerFromUS(uint32(period / time.Microsecond))
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				return c.ADCQuery(ctx, ch, ticks)
			})
		},
	}
	query.Flags().DurationVar(&period, "period", 100*time.Millisecond, "Sampling period")
	cmd.AddCommand(start, value, query)
	return cmd
}

func newWatchCommand(s *session) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print sample events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				return c.Watch(ctx, func(ev protocol.SampleEvent) {
					cmd.Printf("tick %d channel %d value %d\n", ev.Tick, ev.Channel, ev.Value)
				})
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func newTraceCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "trace",
		Short: "Dump the firmware trace ring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(s, func(ctx context.Context, c *mcu.Client) error {
				entries, err := c.Trace(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					cmd.Printf("%10d %-16s id=%d v=%d\n", e.Tick, core.TraceName(uint8(e.Kind)), e.ID, e.Value)
				}
				return nil
			})
		},
	}
}

func newConfigCommand(s *session) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{Use: "config", Short: "Manage the config file"}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.cfg.Persist(overwrite); err != nil {
				return err
			}
			s.logger.Infow("config written", "path", s.cfg.Path())
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
