// This command is a small convenience tool for managing access keys and
// address bans in the configured server database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/core/data"
)

var (
	configPath = pflag.StringP("config", "c", "./", "Path to the directory containing the server config file")
	listKeys   = pflag.Bool("keys", false, "List the active access keys.")
	ban        = pflag.String("ban", "", "Ban an address.")
	reason     = pflag.String("reason", "", "Reason recorded with --ban.")
	unban      = pflag.String("unban", "", "Lift the ban on an address.")
)

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	dataSource := cfg.Database.Filename
	if cfg.Database.Engine == "postgres" {
		dataSource = cfg.DatabaseURL()
	}
	db, err := data.Initialize(cfg.Database.Engine, dataSource, cfg.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		return err
	}
	defer data.Shutdown(db)

	switch {
	case *listKeys:
		return printKeys(db)
	case *ban != "":
		if err := data.CreateBan(db, &data.Ban{Address: *ban, Reason: *reason}); err != nil {
			return fmt.Errorf("failed to ban %s: %v", *ban, err)
		}
		fmt.Println("banned", *ban)
	case *unban != "":
		if err := data.DeleteBan(db, *unban); err != nil {
			return fmt.Errorf("failed to unban %s: %v", *unban, err)
		}
		fmt.Println("unbanned", *unban)
	default:
		pflag.Usage()
	}
	return nil
}

func printKeys(db *gorm.DB) error {
	for _, kind := range []data.KeyKind{data.AdminKey, data.GuestKey} {
		keys, err := data.FindAccessKeys(db, kind)
		if err != nil {
			return fmt.Errorf("failed to load %s keys: %v", kind, err)
		}
		for _, k := range keys {
			fmt.Printf("%-6s %s (uses: %d, created %s)\n", kind, k.Key, k.Uses, k.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
