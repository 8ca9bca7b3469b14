package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/ui"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	Long: `Manage the sensoroic configuration file.

The file holds the discovery defaults used by 'discover' and 'serve', and
the hosts seen by previous sessions.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(forceInit)
		p := ui.NewPrinter(cmd.OutOrStdout())
		if errors.Is(err, config.ErrConfigExists) {
			if !ui.IsTerminal() {
				return err
			}
			if !ui.ConfirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
				p.PrintWarning("Configuration left unchanged", map[string]string{"Path": path})
				return nil
			}
			path, err = config.CreateDefaultConfig(true)
		}
		if err != nil {
			return err
		}
		p.PrintSuccess("Configuration written", map[string]string{"Path": path})
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := yaml.Marshal(reg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		ui.NewPrinter(cmd.OutOrStdout()).Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).Println(path)
		return nil
	},
}

var configHostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the hosts seen by previous sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		p := ui.NewPrinter(cmd.OutOrStdout())
		if len(reg.Hosts) == 0 {
			p.Println("No known hosts. Run 'sensoroic discover' first.")
			return nil
		}

		addrs := make([]string, 0, len(reg.Hosts))
		for addr := range reg.Hosts {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			h := reg.Hosts[addr]
			name := addr
			if h.Nickname != "" {
				name = fmt.Sprintf("%s (%s)", h.Nickname, addr)
			}
			p.Println(fmt.Sprintf("%s\n   Transport: %s\n   Resources: %d\n   Last seen: %s",
				name, h.Transport, h.Resources, h.LastSeen.Local().Format(time.RFC3339)))
		}
		return nil
	},
}

var configNicknameCmd = &cobra.Command{
	Use:     "nickname <host> <name>",
	Short:   "Give a host a nickname",
	Example: `  sensoroic config nickname coap+gatt://C0:FA:AC:CF:FA:0A "Kitchen sensor"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		reg.SetHostNickname(args[0], args[1])
		if err := reg.Save(); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).Println(fmt.Sprintf("%s is now %q", args[0], args[1]))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configHostsCmd)
	configCmd.AddCommand(configNicknameCmd)
}
