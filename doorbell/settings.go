package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itohio/doorbell/pkg/adc"
	"github.com/itohio/doorbell/pkg/alert"
	"github.com/itohio/doorbell/pkg/notify"
	"github.com/itohio/doorbell/pkg/wifi"
)

func newAPCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ap",
		Short: "Manage known WiFi access points",
	}

	add := &cobra.Command{
		Use:   "add SSID [PASSWORD]",
		Short: "Add or replace a known access point",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) > 1 {
				password = args[1]
			}
			ap, err := wifi.NewAPConfig(args[0], password)
			if err != nil {
				return err
			}
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := wifi.NewAPStore(db).Add(ap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", ap.SSID)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:     "rm SSID",
		Aliases: []string{"delete"},
		Short:   "Forget a known access point",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := wifi.NewAPStore(db).Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List known access points",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			aps, err := wifi.NewAPStore(db).List()
			if err != nil {
				return err
			}
			ssids := make([]string, 0, len(aps))
			for ssid := range aps {
				ssids = append(ssids, ssid)
			}
			slices.Sort(ssids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SSID\tKEY\tSECURED")
			for _, ssid := range ssids {
				fmt.Fprintf(w, "%s\t%s\t%t\n", ssid, wifi.HashSSID(ssid), aps[ssid].Password != "")
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func newMqttCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mqtt",
		Short: "Manage the MQTT uplink settings",
	}

	var cfg alert.MqttConfig
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the MQTT broker settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			var current alert.MqttConfig
			if _, err := db.Get(alert.ConfigKey, &current); err != nil {
				return err
			}
			flags := cmd.Flags()
			current.Enabled = cfg.Enabled
			if flags.Changed("url") {
				current.URL = cfg.URL
			}
			if flags.Changed("client-id") {
				current.ClientID = cfg.ClientID
			}
			if flags.Changed("ring-topic") {
				current.RingTopic = cfg.RingTopic
			}
			if flags.Changed("status-topic") {
				current.StatusTopic = cfg.StatusTopic
			}
			current = current.WithDefaults()
			if err := current.Validate(); err != nil {
				return err
			}
			if err := db.Set(alert.ConfigKey, current); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeMqtt(current))
			return nil
		},
	}
	set.Flags().BoolVar(&cfg.Enabled, "enabled", true, "Enable the MQTT uplink (--enabled=false to switch off)")
	set.Flags().StringVar(&cfg.URL, "url", "", "Broker URL (mqtt://host:1883)")
	set.Flags().StringVar(&cfg.ClientID, "client-id", "", "Client id prefix")
	set.Flags().StringVar(&cfg.RingTopic, "ring-topic", "", "Shared ring topic")
	set.Flags().StringVar(&cfg.StatusTopic, "status-topic", "", "Status topic prefix")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored MQTT settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			var current alert.MqttConfig
			if _, err := db.Get(alert.ConfigKey, &current); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeMqtt(current.WithDefaults()))
			return nil
		},
	}

	cmd.AddCommand(set, show)
	return cmd
}

func describeMqtt(c alert.MqttConfig) string {
	return fmt.Sprintf("enabled=%t url=%s client_id=%s ring_topic=%s status_topic=%s",
		c.Enabled, c.URL, c.ClientID, c.RingTopic, c.StatusTopic)
}

func newPushoverCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pushover",
		Short: "Manage the Pushover notification settings",
	}

	var cfg notify.PushoverConfig
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the Pushover credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			var current notify.PushoverConfig
			if _, err := db.Get(notify.ConfigKey, &current); err != nil {
				return err
			}
			flags := cmd.Flags()
			current.Enabled = cfg.Enabled
			if flags.Changed("token") {
				current.Token = cfg.Token
			}
			if flags.Changed("user") {
				current.User = cfg.User
			}
			if flags.Changed("url") {
				current.URL = cfg.URL
			}
			if flags.Changed("message") {
				current.RingMessage = cfg.RingMessage
			}
			current = current.WithDefaults()
			if err := current.Validate(); err != nil {
				return err
			}
			if err := db.Set(notify.ConfigKey, current); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describePushover(current))
			return nil
		},
	}
	set.Flags().BoolVar(&cfg.Enabled, "enabled", true, "Enable push notifications (--enabled=false to switch off)")
	set.Flags().StringVar(&cfg.Token, "token", "", "Application token")
	set.Flags().StringVar(&cfg.User, "user", "", "User key")
	set.Flags().StringVar(&cfg.URL, "url", "", "API endpoint")
	set.Flags().StringVar(&cfg.RingMessage, "message", "", "Ring notification text")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored Pushover settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := root.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			var current notify.PushoverConfig
			if _, err := db.Get(notify.ConfigKey, &current); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describePushover(current.WithDefaults()))
			return nil
		},
	}

	cmd.AddCommand(set, show)
	return cmd
}

func describePushover(c notify.PushoverConfig) string {
	return fmt.Sprintf("enabled=%t url=%s token=%s user=%s message=%q",
		c.Enabled, c.URL, mask(c.Token), mask(c.User), c.RingMessage)
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(root.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", root.configPath)
			}
			if err := root.cfg.Save(root.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", root.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func newPortsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports the sensor may be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := adc.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				root.logger.Warn("no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, p.Description)
			}
			return nil
		},
	}
}
