package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"usartio-go/usart"
	"usartio-go/x/timex"
)

var baudCmd = &cobra.Command{
	Use:   "baud [rate...]",
	Short: "Show the prescaler selection for line rates",
	Long: `baud prints which divisor and prescaler factor the driver would program
for each requested rate at the configured clock, together with the
effective rate the divisor actually yields. With no arguments a table of
standard rates is shown.`,
	RunE: runBaud,
}

func init() {
	rootCmd.AddCommand(baudCmd)
}

var standardRates = []uint32{
	300, 1200, 2400, 4800, 9600, 19200, 38400, 57600,
	115200, 230400, 250000, 500000, 1000000, 2000000,
}

func runBaud(cmd *cobra.Command, args []string) error {
	rates := standardRates
	if len(args) > 0 {
		rates = make([]uint32, 0, len(args))
		for _, a := range args {
			v, err := strconv.ParseUint(a, 10, 32)
			if err != nil || v == 0 {
				return fmt.Errorf("bad rate %q", a)
			}
			rates = append(rates, uint32(v))
		}
	}

	clock := viper.GetUint32("clock")
	fmt.Printf("clock %d Hz\n", clock)
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BAUD\tDIVISOR\tFACTOR\tEFFECTIVE\tERROR\tBIT PERIOD")
	for _, rate := range rates {
		bs, err := usart.SelectBaud(clock, rate)
		if err != nil {
			fmt.Fprintf(tw, "%d\t-\t-\t-\t%v\t-\n", rate, err)
			continue
		}
		eff := bs.Effective(clock)
		errPct := (float64(eff) - float64(rate)) / float64(rate) * 100
		bit := time.Duration(timex.PeriodFromHz(eff))
		fmt.Fprintf(tw, "%d\t%d\t/%d\t%d\t%+.2f%%\t%v\n",
			rate, bs.Divisor, bs.Factor(), eff, errPct, bit)
	}
	return tw.Flush()
}
