package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/catalog"
	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/ui"
)

// Discover command flags
var (
	whitelist        []string
	noBLE            bool
	noIP             bool
	scanDuration     time.Duration
	perHostTimeout   time.Duration
	grace            time.Duration
	multicastTimeout time.Duration
	useDNSSD         bool
	adapterName      string
	ipv6Interface    string
	query            string
	outputFormat     string
	plainOutput      bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover OIC resources",
	Long: `Run one discovery session and print the resources found.

The session scans for Bluetooth LE devices advertising the OIC GATT service,
queries each device found, then sends a CoAP multicast query over IP. With
--whitelist the scan is skipped and the given devices are queried in order.

Defaults come from the configuration file; flags override them. Press q
or ctrl+c to cancel; the resources found so far are still printed.`,
	Example: `  # Scan for 10 seconds, then query every device and the IP network
  sensoroic discover

  # Query two known devices over GATT, skip IP
  sensoroic discover --whitelist C0:FA:AC:CF:FA:0A,D4:CA:6E:11:22:33 --no-ip

  # IP only, with DNS-SD browsing and JSON output
  sensoroic discover --no-ble --dnssd --format json

  # Only binary switches
  sensoroic discover --query "/oic/res?rt=oic.r.switch.binary"`,
	RunE: runDiscover,
}

func init() {
	addDiscoverFlags(discoverCmd)
}

func addDiscoverFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&whitelist, "whitelist", nil, "Bluetooth addresses to query instead of scanning")
	f.BoolVar(&noBLE, "no-ble", false, "Skip Bluetooth LE scanning and short-range discovery")
	f.BoolVar(&noIP, "no-ip", false, "Skip the IP multicast query")
	f.DurationVar(&scanDuration, "scan", discovery.DefaultScanDuration, "Bluetooth LE scan duration")
	f.DurationVar(&perHostTimeout, "per-host", discovery.DefaultPerHostTimeout, "Maximum wait for each short-range device")
	f.DurationVar(&grace, "grace", discovery.DefaultGrace, "Extra wait after a device starts answering")
	f.DurationVar(&multicastTimeout, "multicast", discovery.DefaultMulticastTimeout, "Wait for multicast responses")
	f.BoolVar(&useDNSSD, "dnssd", true, "Also browse DNS-SD during the multicast phase")
	f.StringVar(&adapterName, "adapter", "hci0", "Bluetooth adapter")
	f.StringVar(&ipv6Interface, "ipv6-iface", "", "Also send the multicast query to ff02::158 on this interface")
	f.StringVar(&query, "query", discovery.DefaultQuery, "Resource discovery query")
	f.StringVar(&outputFormat, "format", "table", "Output format (table, json)")
	f.BoolVar(&plainOutput, "plain", false, "Print plain progress lines instead of the interactive view")
}

// applyDiscoverFlags overrides prefs with the flags set on cmd.
func applyDiscoverFlags(cmd *cobra.Command, prefs *config.DiscoveryPrefs) {
	f := cmd.Flags()
	if f.Changed("whitelist") {
		prefs.Whitelist = whitelist
	}
	if noBLE {
		prefs.EnableShortRange = false
	}
	if noIP {
		prefs.EnableMulticast = false
	}
	if f.Changed("scan") {
		prefs.ScanDuration = scanDuration
	}
	if f.Changed("per-host") {
		prefs.PerHostTimeout = perHostTimeout
	}
	if f.Changed("grace") {
		prefs.Grace = grace
	}
	if f.Changed("multicast") {
		prefs.MulticastTimeout = multicastTimeout
	}
	if f.Changed("dnssd") {
		prefs.DNSSD = useDNSSD
	}
	if f.Changed("adapter") {
		prefs.Adapter = adapterName
	}
	if f.Changed("ipv6-iface") {
		prefs.IPv6Interface = ipv6Interface
	}
	if f.Changed("query") {
		prefs.Query = query
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unknown format %q (want table or json)", outputFormat)
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	prefs := *reg.DiscoveryPrefs()
	applyDiscoverFlags(cmd, &prefs)

	opts, err := prefs.DiscoveryOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newStack(&prefs)
	defer s.Close()

	out := cmd.OutOrStdout()
	var outcome *ui.Outcome
	if outputFormat == "json" {
		outcome, err = ui.RunPlain(ctx, s.coordinator, opts, io.Discard)
		if err != nil {
			return err
		}
		if err := ui.NewPrinter(out).PrintJSON(outcome); err != nil {
			return err
		}
	} else {
		runner := ui.NewRunner(ui.RunnerConfig{
			Title:       "Resource Discovery",
			Command:     "sensoroic " + strings.Join(os.Args[1:], " "),
			Params:      discoverParams(&prefs, s),
			Interactive: !plainOutput && ui.IsTerminal(),
			Input:       cmd.InOrStdin(),
			Output:      out,
		})
		outcome, err = runner.Run(ctx, s.coordinator, opts)
		if outcome == nil {
			return err
		}
		if err != nil {
			logging.Warn("Discovery view failed", zap.Error(err))
		}
	}

	remember(reg, outcome.Resources)
	return nil
}

// discoverParams lists the settings shown in the command header.
func discoverParams(prefs *config.DiscoveryPrefs, s *stack) map[string]string {
	params := map[string]string{
		"Transports": s.router.Connectivity().String(),
		"Query":      prefs.Query,
	}
	if params["Query"] == "" {
		params["Query"] = discovery.DefaultQuery
	}
	if prefs.EnableShortRange {
		if len(prefs.Whitelist) > 0 {
			params["Whitelist"] = strings.Join(prefs.Whitelist, ", ")
		} else {
			params["Scan"] = durationOr(prefs.ScanDuration, discovery.DefaultScanDuration)
		}
		params["Per host"] = durationOr(prefs.PerHostTimeout, discovery.DefaultPerHostTimeout)
	}
	if prefs.EnableMulticast {
		params["Multicast"] = durationOr(prefs.MulticastTimeout, discovery.DefaultMulticastTimeout)
	}
	return params
}

func durationOr(d, def time.Duration) string {
	if d <= 0 {
		d = def
	}
	return d.String()
}

// remember records the hosts of resources in the registry and saves it.
func remember(reg *config.Registry, resources []*discovery.Resource) {
	if len(resources) == 0 {
		return
	}
	table, err := catalog.New(catalog.DefaultSize)
	if err != nil {
		logging.Warn("Failed to create resource table", zap.Error(err))
		return
	}
	table.Merge(resources)
	table.Remember(reg)
	if err := reg.Save(); err != nil {
		logging.Warn("Failed to save known hosts", zap.Error(err))
	}
}
