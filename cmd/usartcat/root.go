package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"usartio-go/usart"
)

var rootCmd = &cobra.Command{
	Use:   "usartcat",
	Short: "Exercise the usart driver stack from the command line",
	Long: `usartcat drives the interrupt-driven serial stack from a host shell.

The driver, its register model and its queues are the same code a target
build runs; here the peripheral is either looped back on itself (cat) or
bridged onto a real serial port (bridge). The baud command shows which
prescaler the rate selection would program.

Line configuration is shared by all subcommands and can come from flags,
USARTCAT_* environment variables or a usartcat.yaml config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.Uint32("clock", usart.DefaultClock, "peripheral clock in Hz")
	pf.Uint32P("baud", "b", usart.DefaultBaud, "line rate in baud")
	pf.Uint8("frame-size", 8, "data bits per frame (5..9)")
	pf.String("parity", "none", "parity: none, even, odd")
	pf.Uint8("stop-bits", 1, "stop bits (1 or 2)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")

	for _, name := range []string{"clock", "baud", "frame-size", "parity", "stop-bits", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
	viper.SetEnvPrefix("USARTCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	viper.SetConfigName("usartcat")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("config loaded", "file", viper.ConfigFileUsed())
	}
}

func setupLogging() error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("bad log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// lineParity maps the configured parity name onto the driver's enum.
func lineParity() (usart.Parity, error) {
	switch strings.ToLower(viper.GetString("parity")) {
	case "", "none":
		return usart.ParityNone, nil
	case "even":
		return usart.ParityEven, nil
	case "odd":
		return usart.ParityOdd, nil
	default:
		return 0, fmt.Errorf("bad parity %q: want none, even or odd", viper.GetString("parity"))
	}
}

// pumpStdin enqueues stdin for transmit until EOF or cancellation. A
// reader goroutine hands chunks over a channel so the loop can stop on a
// done context even while stdin sits blocked in Read.
func pumpStdin(ctx context.Context, drv *usart.Driver, echo func([]byte)) {
	chunks := make(chan []byte)
	go func() {
		defer close(chunks)
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				c := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- c:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := drv.WriteContext(ctx, c); err != nil {
				return
			}
			if echo != nil {
				echo(c)
			}
		}
	}
}

// frameMode assembles the Init mode word from the shared line flags. The
// caller ors in the direction enables.
func frameMode() (uint16, error) {
	par, err := lineParity()
	if err != nil {
		return 0, err
	}
	size := viper.GetUint("frame-size")
	if size < 5 || size > 9 {
		return 0, fmt.Errorf("bad frame-size %d: want 5..9", size)
	}
	stop := viper.GetUint("stop-bits")
	if stop < 1 || stop > 2 {
		return 0, fmt.Errorf("bad stop-bits %d: want 1 or 2", stop)
	}
	return usart.OpAsync |
		usart.ModeFrameSize(uint8(size)) |
		usart.ModeParity(par) |
		usart.ModeStopBits(uint8(stop)), nil
}
