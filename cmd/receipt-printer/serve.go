package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/schawnndev/receiptprinter/internal/api"
	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/integration"
	"github.com/schawnndev/receiptprinter/internal/printer"
	"github.com/schawnndev/receiptprinter/internal/setup"
)

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	entry := logrus.NewEntry(log)
	base := basePrinterConfig(cfg)

	manager := integration.NewManager(store, base,
		integration.WithPollInterval(cfg.PollInterval()),
		integration.WithLogger(entry),
	)
	if err := manager.SetupAll(ctx); err != nil {
		return err
	}

	newFlow := func() *setup.Flow {
		return setup.NewFlow(store, setup.PrinterTester(base, printer.WithLogger(entry)), entry)
	}
	options := setup.NewOptionsFlow(store, manager.ReloadEntry)
	server := api.New(cfg.ListenAddr, manager, newFlow, options, entry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		manager.Shutdown(context.WithoutCancel(gctx))
		return nil
	})

	log.WithField("printers", len(manager.Entries())).Info("receipt printer service started")
	return g.Wait()
}
