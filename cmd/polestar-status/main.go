// Utility for printing the current odometer and battery state of the vehicle on a Polestar
// account.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/polestar-community/polestar-go/internal/log"
	"github.com/polestar-community/polestar-go/pkg/auth"
	"github.com/polestar-community/polestar-go/pkg/cache"
	"github.com/polestar-community/polestar-go/pkg/cli"
	"github.com/polestar-community/polestar-go/pkg/polestar"
)

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug   bool
		timeout time.Duration
	)
	config := cli.NewConfig()
	config.RegisterCommandLineFlags()
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Maximum time to wait for the API")
	flag.Parse()
	config.ReadFromEnvironment()

	if debug {
		log.SetLevel(log.LevelDebug)
	}
	if config.Email == "" {
		fmt.Fprintf(os.Stderr, "Must provide account email with -email or $%s\n", cli.EnvPolestarEmail)
		return
	}
	password, err := config.Password()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %s\n", err)
		return
	}

	gateway := auth.New(config.Email, password, nil)
	if config.KeyringTokenName != "" {
		if token, err := config.LoadTokenFromKeyring(); err == nil {
			gateway.SetAccessToken(token)
		} else {
			log.Debug("No cached token: %s", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	session := polestar.NewSession(gateway, polestar.Config{})
	if err := session.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize session: %s\n", err)
		return
	}
	if err := session.RefreshAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch vehicle data: %s\n", err)
		return
	}

	if config.KeyringTokenName != "" {
		if err := config.SaveTokenToKeyring(gateway.AccessToken()); err != nil {
			log.Warning("Could not cache token in keyring: %s", err)
		}
	}

	identity := session.Identity()
	fmt.Printf("%s (%s)\n", identity.DisplayName, identity.VIN)
	fmt.Printf("  Odometer:      %v m\n", session.LatestField(cache.QueryOdometer, "odometerMeters"))
	fmt.Printf("  Battery:       %v%%\n", session.LatestField(cache.QueryBattery, "batteryChargeLevelPercentage"))
	fmt.Printf("  Range:         %v km\n", session.LatestField(cache.QueryBattery, "estimatedDistanceToEmptyKm"))
	fmt.Printf("  Charging:      %v\n", session.LatestField(cache.QueryBattery, "chargingStatus"))
	fmt.Printf("  Last updated:  %v\n", session.LatestField(cache.QueryBattery, "eventUpdatedTimestamp/iso"))

	status = 0
}
