package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/showroom/internal/heartbeat"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/kiosk"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/version"
)

// ProvisionCmd implements the 'provision' command.
type ProvisionCmd struct {
	Name    string `required:"" help:"Display name of this device"`
	Type    string `default:"kiosk" enum:"kiosk,mobile,tv" help:"Device class (kiosk, mobile, tv)"`
	Offline bool   `help:"Only write the local identity; skip fleet registration"`
}

func (p *ProvisionCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ids, err := identity.Open(cfg.Device.IdentityPath)
	if err != nil {
		return err
	}
	dev, err := ids.Provision(p.Name, model.DeviceType(p.Type))
	if err != nil {
		return err
	}
	fmt.Printf("Provisioned %s (%s) as %s\n", dev.Name, dev.DeviceType, dev.ID)
	fmt.Printf("Identity written to %s\n", ids.Path())
	if p.Offline {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
	defer cancel()
	store, err := kiosk.OpenRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reporter := heartbeat.New(heartbeat.Options{Remote: store, Identity: ids, Version: version.Version})
	if err := reporter.Register(ctx); err != nil {
		return err
	}
	fmt.Println("Registered with fleet")
	return nil
}
