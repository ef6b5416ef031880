package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.bug.st/serial"

	"usartio-go/hw"
	"usartio-go/lineio"
	"usartio-go/usart"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge [port]",
	Short: "Bridge the driver onto a real serial port",
	Long: `bridge puts the driver stack on one end of a physical serial line.
Bytes the driver transmits are written to the host port; bytes the host
port receives are fed to the driver's line side and come out as framed
events. stdin is enqueued for transmit as in cat.

With --list (or no port argument) the available host ports are printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().Bool("list", false, "list host serial ports and exit")
	bridgeCmd.Flags().String("frame-mode", "lines", "event framing: bytes or lines")
	bridgeCmd.Flags().Duration("idle-flush", 200*time.Millisecond, "lines mode: flush a partial line after this idle gap")
	bridgeCmd.Flags().Duration("read-timeout", 200*time.Millisecond, "host port read timeout")
}

// hostMode maps the shared line flags onto a host port mode. 9-bit frames
// have no host equivalent and are refused.
func hostMode() (*serial.Mode, error) {
	par, err := lineParity()
	if err != nil {
		return nil, err
	}
	m := &serial.Mode{BaudRate: int(viper.GetUint32("baud"))}
	switch par {
	case usart.ParityEven:
		m.Parity = serial.EvenParity
	case usart.ParityOdd:
		m.Parity = serial.OddParity
	default:
		m.Parity = serial.NoParity
	}
	size := viper.GetUint("frame-size")
	if size < 5 || size > 8 {
		return nil, fmt.Errorf("bad frame-size %d: host ports take 5..8 data bits", size)
	}
	m.DataBits = int(size)
	if viper.GetUint("stop-bits") >= 2 {
		m.StopBits = serial.TwoStopBits
	} else {
		m.StopBits = serial.OneStopBit
	}
	return m, nil
}

func listPorts() error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list"); list || len(args) == 0 {
		return listPorts()
	}
	name := args[0]

	mode, err := frameMode()
	if err != nil {
		return err
	}
	hmode, err := hostMode()
	if err != nil {
		return err
	}
	rdTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	fmodeFlag, _ := cmd.Flags().GetString("frame-mode")
	idle, _ := cmd.Flags().GetDuration("idle-flush")

	port, err := serial.Open(name, hmode)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer port.Close()
	if err := port.SetReadTimeout(rdTimeout); err != nil {
		return fmt.Errorf("read timeout: %w", err)
	}

	vt := hw.NewController()
	tr := hw.NewTransceiver(vt)
	drv := usart.New(tr.Bank(), vt, usart.Config{Clock: viper.GetUint32("clock")})
	tr.OnTransmit(func(b byte) {
		if _, werr := port.Write([]byte{b}); werr != nil {
			slog.Warn("host write failed", "err", werr)
		}
	})
	if err := drv.Init(viper.GetUint32("baud"), mode|usart.ModeRXEN|usart.ModeTXEN); err != nil {
		return err
	}
	slog.Info("bridge up", "port", name, "baud", hmode.BaudRate, "divisor", drv.Divisor())

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopSignals()

	// Host receive side: one goroutine owns the line feed.
	go func() {
		buf := make([]byte, 256)
		for {
			if ctx.Err() != nil {
				return
			}
			n, rerr := port.Read(buf)
			if rerr != nil {
				slog.Warn("host read failed", "err", rerr)
				return
			}
			for i := 0; i < n; i++ {
				tr.ReceiveByte(buf[i])
			}
		}
	}()

	w := lineio.New(64)
	stop, err := w.Register(ctx, lineio.ReaderCfg{
		Name:      name,
		Port:      drv,
		Mode:      fmodeFlag,
		MaxFrame:  256,
		IdleFlush: idle,
	})
	if err != nil {
		return err
	}
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.Events():
				fmt.Printf("%s %-2s %s %q\n", ev.TS.Format("15:04:05.000"), ev.Dir, ev.Name, ev.Data)
			}
		}
	}()

	pumpStdin(ctx, drv, func(b []byte) { w.EmitTX(name, b) })

	stopSignals()
	<-done

	st := drv.Stats()
	slog.Info("bridge done",
		"tx_bytes", st.TxBytes,
		"rx_bytes", st.RxBytes,
		"overruns", st.Overruns,
		"rx_drops", st.RxQueueDrops,
		"event_drops", w.Drops())
	return nil
}
