// Command feeder drives a scheduled feed relay and powers the board off
// between feeds, waking on the RTC alarm.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New(), os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "feeder",
		Short:         "Scheduled feeder with deep-sleep power management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			log := logger.New(s.LogLevel, out)
			defer log.Sync()
			return run(cmd.Context(), s, log)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	if err := registerOptions(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(&cobra.Command{
		Use:   "print-state",
		Short: "Print the RTC time, armed alarm and next alert, then exit",
		RunE: func(*cobra.Command, []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			log := logger.New(s.LogLevel, io.Discard)
			return printState(out, s, log)
		},
	})
	root.AddCommand(newSetWifiCmd(v, out))
	return root
}

func newSetWifiCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var creds config.WifiCredentials
	cmd := &cobra.Command{
		Use:   "set-wifi",
		Short: "Store the access point SSID and password, then exit",
		RunE: func(*cobra.Command, []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			log := logger.New(s.LogLevel, io.Discard)
			return setWifi(out, s, creds, log)
		},
	}
	cmd.Flags().StringVar(&creds.SSID, "ssid", "", "access point SSID")
	cmd.Flags().StringVar(&creds.Password, "password", "", "access point password")
	return cmd
}
