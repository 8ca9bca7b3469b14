package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/device"
	"github.com/sensoroic/sensoroic/internal/oic"
	"github.com/sensoroic/sensoroic/internal/transport/bluez"
	"github.com/sensoroic/sensoroic/internal/ui"
)

// Resource command flags
var (
	resourceFormat string
	requestTimeout time.Duration
)

var requestTips = []string{
	"Run 'sensoroic discover' to check the device is reachable",
	"Bluetooth devices accept one connection at a time",
	"Run with --log-level debug for details",
}

var getCmd = &cobra.Command{
	Use:   "get HOST HREF",
	Short: "Read the values of a resource",
	Long: `Read a resource once and print its values.

HOST is a discovered host ("coap://10.0.0.2:5683", "coap+gatt://C0:FA:AC:CF:FA:0A"),
a bare Bluetooth or IP address, or a nickname set with 'config nickname'.`,
	Example: `  sensoroic get coap+gatt://C0:FA:AC:CF:FA:0A /bme280_0/ambtmp
  sensoroic get 10.0.0.2 /light/1 --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

var observeCmd = &cobra.Command{
	Use:   "observe HOST HREF",
	Short: "Print every new value of a resource",
	Long: `Observe a resource and print each value it reports until interrupted.

The command fails when the first value does not arrive within 10 seconds.`,
	Example: `  sensoroic observe coap+gatt://C0:FA:AC:CF:FA:0A /bme280_0/ambtmp`,
	Args:    cobra.ExactArgs(2),
	RunE:    runObserve,
}

var switchCmd = &cobra.Command{
	Use:   "switch HOST HREF on|off|toggle",
	Short: "Turn a binary switch on or off",
	Example: `  sensoroic switch coap://10.0.0.2 /light/1 on
  sensoroic switch lamp /light/1 toggle`,
	Args: cobra.ExactArgs(3),
	RunE: runSwitch,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, observeCmd} {
		c.Flags().StringVar(&resourceFormat, "format", "table", "Output format (table, json)")
	}
	for _, c := range []*cobra.Command{getCmd, switchCmd} {
		c.Flags().DurationVar(&requestTimeout, "timeout", 10*time.Second, "Maximum wait for the device")
	}
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(switchCmd)
}

// resourceHost turns a nickname-resolved argument into a host with scheme.
func resourceHost(name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	if mac, err := bluez.ParseTarget(name); err == nil {
		return bluez.Scheme + mac
	}
	return "coap://" + name
}

// openDevice builds a client with only the medium host needs.
func openDevice(arg string) (*device.Client, *stack, string, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	host := resourceHost(reg.ResolveHost(arg))

	prefs := *reg.DiscoveryPrefs()
	gatt := strings.HasPrefix(host, bluez.Scheme)
	prefs.EnableShortRange = gatt
	prefs.EnableMulticast = !gatt
	prefs.DNSSD = false

	s := newStack(&prefs)
	return device.New(s.router), s, host, nil
}

func checkFormat() error {
	switch resourceFormat {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (want table or json)", resourceFormat)
}

func runGet(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	c, s, host, err := openDevice(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	p := ui.NewPrinter(cmd.OutOrStdout())
	rep, err := c.Get(ctx, host, args[1])
	if err != nil {
		p.PrintError("Request failed", err, requestTips)
		return err
	}
	if resourceFormat == "json" {
		return p.PrintJSON(rep)
	}
	p.PrintHeader("Resource", "sensoroic get", map[string]string{"Host": host, "Resource": args[1]})
	p.Println(ui.RenderRepresentation(rep))
	return nil
}

func runObserve(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	c, s, host, err := openDevice(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(cmd.OutOrStdout())
	if resourceFormat != "json" {
		p.PrintHeader("Observe", "sensoroic observe", map[string]string{"Host": host, "Resource": args[1]})
		p.Newline()
	}
	err = c.Observe(ctx, host, args[1], func(rep oic.Representation) {
		if resourceFormat == "json" {
			_ = p.PrintJSON(rep)
			return
		}
		p.Println(ui.FormatReading(time.Now(), rep))
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, device.ErrNoResponse):
		p.PrintError("The device failed to respond", err, requestTips)
	default:
		p.PrintError("Observation failed", err, requestTips)
	}
	return err
}

// parseSwitchState reads "on", "off" or "toggle".
func parseSwitchState(s string) (on, toggle bool, err error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, false, nil
	case "off", "false", "0":
		return false, false, nil
	case "toggle":
		return false, true, nil
	}
	return false, false, fmt.Errorf("invalid state %q (want on, off or toggle)", s)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	on, toggle, err := parseSwitchState(args[2])
	if err != nil {
		return err
	}
	c, s, host, err := openDevice(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if toggle {
		on, err = c.Toggle(ctx, host, args[1])
	} else {
		err = c.Switch(ctx, host, args[1], on)
	}
	p := ui.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		p.PrintError("Switch failed", err, requestTips)
		return err
	}
	state := "off"
	if on {
		state = "on"
	}
	p.PrintSuccess("Switch updated", map[string]string{"Host": host, "Resource": args[1], "State": state})
	return nil
}
