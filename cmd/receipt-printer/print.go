package main

import (
	"context"
	"errors"
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/printer"
)

// target selects a printer by configured entry or by host
type target struct {
	entry *string
	host  *string
}

func addTargetFlags(fs *flag.FlagSet) target {
	return target{
		entry: fs.String("entry", "", "config entry id"),
		host:  fs.String("host", "", "printer host, used when no entry is given"),
	}
}

func (t target) client(cfg *config.Config, log *logrus.Logger) (*printer.Client, error) {
	pc := basePrinterConfig(cfg)

	switch {
	case *t.entry != "":
		store, err := openStore()
		if err != nil {
			return nil, err
		}
		e, ok := store.Get(*t.entry)
		if !ok {
			return nil, config.ErrEntryNotFound
		}
		s := e.Settings()
		pc.Host = e.Data.Host
		pc.ColumnsFontA = s.ColumnsFontA
		pc.ColumnsFontB = s.ColumnsFontB
		pc.ImageMaxWidth = s.ImageMaxWidth
	case *t.host != "":
		pc.Host = *t.host
	default:
		return nil, errors.New("-entry or -host is required")
	}

	return printer.New(pc, printer.WithLogger(logrus.NewEntry(log))), nil
}

func runPrintText(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("print-text", flag.ExitOnError)
	target := addTargetFlags(fs)
	text := fs.String("text", "", "text to print")
	align := fs.String("align", string(printer.AlignLeft), "left, center or right")
	font := fs.String("font", string(printer.FontA), "a or b")
	bold := fs.Bool("bold", false, "bold text")
	doubleHeight := fs.Bool("double-height", false, "double height text")
	doubleWidth := fs.Bool("double-width", false, "double width text")
	cut := fs.Bool("cut", true, "cut the paper afterwards")
	wrap := fs.Bool("wrap", true, "wrap lines to the printer width")
	_ = fs.Parse(args)

	client, err := target.client(cfg, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	job := printer.NewTextJob(*text)
	job.Align = printer.Align(*align)
	job.Font = printer.Font(*font)
	job.Bold = *bold
	job.DoubleHeight = *doubleHeight
	job.DoubleWidth = *doubleWidth
	job.Cut = *cut
	job.Wrap = *wrap
	return client.PrintText(ctx, job)
}

func runPrintImage(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("print-image", flag.ExitOnError)
	target := addTargetFlags(fs)
	source := fs.String("image", "", "local path or http(s) URL")
	center := fs.Bool("center", false, "center the image")
	cut := fs.Bool("cut", true, "cut the paper afterwards")
	_ = fs.Parse(args)

	client, err := target.client(cfg, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	job := printer.NewImageJob(*source)
	job.Center = *center
	job.Cut = *cut
	return client.PrintImage(ctx, job)
}

func runPrintQR(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("print-qr", flag.ExitOnError)
	target := addTargetFlags(fs)
	content := fs.String("content", "", "QR code content")
	size := fs.Int("size", printer.DefaultQRSize, "module size (1-16)")
	center := fs.Bool("center", false, "center the code")
	cut := fs.Bool("cut", true, "cut the paper afterwards")
	_ = fs.Parse(args)

	client, err := target.client(cfg, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	job := printer.NewQRJob(*content)
	job.Size = *size
	job.Center = *center
	job.Cut = *cut
	return client.PrintQR(ctx, job)
}

func runOpenDrawer(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("open-drawer", flag.ExitOnError)
	target := addTargetFlags(fs)
	pin := fs.Int("pin", 0, "drawer kick connector pin (0 or 1)")
	_ = fs.Parse(args)

	client, err := target.client(cfg, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	return client.OpenDrawer(ctx, *pin)
}
