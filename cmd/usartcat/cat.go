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

	"usartio-go/fifo"
	"usartio-go/hw"
	"usartio-go/lineio"
	"usartio-go/usart"
)

var catCmd = &cobra.Command{
	Use:   "cat",
	Short: "Pump stdin through a looped-back driver and print the framed echo",
	Long: `cat stands up the full driver stack with the transmit line jumpered to
the receive line. Bytes read from stdin are enqueued for transmit, travel
the interrupt chain, come back through the receive queue and are framed
into events on stdout. EOF or an interrupt ends the run and prints the
traffic counters.`,
	RunE: runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)

	catCmd.Flags().String("frame-mode", "lines", "event framing: bytes or lines")
	catCmd.Flags().Duration("idle-flush", 200*time.Millisecond, "lines mode: flush a partial line after this idle gap")
	catCmd.Flags().Int("queue", 64, "driver queue depth in bytes (power of two)")
	catCmd.Flags().Duration("stats-every", 0, "log traffic counters at this interval (0 disables)")
}

func runCat(cmd *cobra.Command, _ []string) error {
	mode, err := frameMode()
	if err != nil {
		return err
	}
	queue, _ := cmd.Flags().GetInt("queue")
	if queue < 2 || queue&(queue-1) != 0 {
		return fmt.Errorf("bad queue depth %d: want a power of two >= 2", queue)
	}
	fmode, _ := cmd.Flags().GetString("frame-mode")
	idle, _ := cmd.Flags().GetDuration("idle-flush")
	statsEvery, _ := cmd.Flags().GetDuration("stats-every")

	vt := hw.NewController()
	tr := hw.NewTransceiver(vt)
	drv := usart.New(tr.Bank(), vt, usart.Config{
		Clock: viper.GetUint32("clock"),
		RX:    fifo.New(queue),
		TX:    fifo.New(queue),
	})
	tr.OnTransmit(tr.ReceiveByte) // loopback jumper

	baud := viper.GetUint32("baud")
	if err := drv.Init(baud, mode|usart.ModeRXEN|usart.ModeTXEN); err != nil {
		return fmt.Errorf("init at %d baud: %w", baud, err)
	}
	bs := usart.BaudSetting{Divisor: drv.Divisor(), DoubleSpeed: drv.DoubleSpeed()}
	slog.Info("driver up",
		"baud", baud,
		"divisor", bs.Divisor,
		"factor", bs.Factor(),
		"effective", bs.Effective(drv.Clock()))

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopSignals()

	w := lineio.New(64)
	stop, err := w.Register(ctx, lineio.ReaderCfg{
		Name:      "loop0",
		Port:      drv,
		Mode:      fmode,
		MaxFrame:  256,
		IdleFlush: idle,
	})
	if err != nil {
		return err
	}
	defer stop()

	tick := time.NewTicker(time.Hour)
	tick.Stop()
	if statsEvery > 0 {
		tick.Reset(statsEvery)
	}
	defer tick.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.Events():
				fmt.Printf("%s %-2s %s %q\n", ev.TS.Format("15:04:05.000"), ev.Dir, ev.Name, ev.Data)
			case <-tick.C:
				st := drv.Stats()
				slog.Info("traffic", "tx_bytes", st.TxBytes, "rx_bytes", st.RxBytes, "kicks", st.Kicks)
			}
		}
	}()

	pumpStdin(ctx, drv, nil)

	// Let a trailing partial line idle-flush before the printer stops.
	select {
	case <-ctx.Done():
	case <-time.After(idle + 50*time.Millisecond):
	}
	stopSignals()
	<-done

	st := drv.Stats()
	slog.Info("loopback done",
		"tx_bytes", st.TxBytes,
		"rx_bytes", st.RxBytes,
		"kicks", st.Kicks,
		"rx_drops", st.RxQueueDrops,
		"event_drops", w.Drops())
	return nil
}
