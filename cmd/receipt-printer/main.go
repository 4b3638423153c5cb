package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/printer"
	"github.com/schawnndev/receiptprinter/internal/setup"
	"github.com/schawnndev/receiptprinter/internal/status"
	"github.com/schawnndev/receiptprinter/internal/tui"
	"github.com/schawnndev/receiptprinter/internal/version"
)

const usage = `usage: receipt-printer <command> [flags]

commands:
  setup        add a printer (interactive unless -host is given)
  options      change columns and image width of a printer
  list         list configured printers
  remove       remove a configured printer
  serve        run the HTTP API and poll every printer
  status       query a printer's status
  print-text   print text
  print-image  print a local image or an image URL
  print-qr     print a QR code
  open-drawer  kick the cash drawer wired to the printer
  version      print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadOrCreateDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log := buildLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	switch os.Args[1] {
	case "setup":
		err = runSetup(ctx, cfg, log, args)
	case "options":
		err = runOptions(ctx, args)
	case "list":
		err = runList()
	case "remove":
		err = runRemove(args)
	case "serve":
		err = runServe(ctx, cfg, log)
	case "status":
		err = runStatus(ctx, cfg, log, args)
	case "print-text":
		err = runPrintText(ctx, cfg, log, args)
	case "print-image":
		err = runPrintImage(ctx, cfg, log, args)
	case "print-qr":
		err = runPrintQR(ctx, cfg, log, args)
	case "open-drawer":
		err = runOpenDrawer(ctx, cfg, log, args)
	case "version":
		fmt.Printf("receipt-printer %s\n", version.Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// basePrinterConfig applies the app config to the printer defaults
func basePrinterConfig(cfg *config.Config) printer.Config {
	pc := printer.DefaultConfig("")
	pc.CodePage = cfg.CodePage
	pc.Timeout = cfg.Timeout()
	pc.StatusTimeout = cfg.StatusTimeout()
	return pc
}

func openStore() (*config.Store, error) {
	return config.OpenStore(config.EntriesPath())
}

func runSetup(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	def := setup.DefaultInput()
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	name := fs.String("name", def.Name, "display name")
	host := fs.String("host", "", "printer IP address or host; serial:/dev/ttyUSB0@19200 for serial printers")
	columnsA := fs.Int("columns-a", def.ColumnsFontA, "characters per line with font A (1-100)")
	columnsB := fs.Int("columns-b", def.ColumnsFontB, "characters per line with font B (1-100)")
	imageWidth := fs.Int("image-width", def.ImageMaxWidth, "maximum image width in pixels (1-1000)")
	_ = fs.Parse(args)

	store, err := openStore()
	if err != nil {
		return err
	}
	flow := setup.NewFlow(store, setup.PrinterTester(basePrinterConfig(cfg), printer.WithLogger(logrus.NewEntry(log))), logrus.NewEntry(log))

	var res setup.Result
	if *host == "" {
		res, err = tui.Run(ctx, flow)
	} else {
		res, err = flow.Submit(ctx, setup.Input{
			Name:          *name,
			Host:          *host,
			ColumnsFontA:  *columnsA,
			ColumnsFontB:  *columnsB,
			ImageMaxWidth: *imageWidth,
		})
	}
	if err != nil {
		return err
	}

	switch res.Type {
	case setup.ResultCreateEntry:
		fmt.Printf("Added %s (%s) as %s\n", res.Entry.Title, res.Entry.Data.Host, res.Entry.ID)
		return nil
	case setup.ResultAbort:
		return errors.New("this printer is already configured")
	case setup.ResultForm:
		return formError(res.Errors)
	}
	return errors.New("setup cancelled")
}

func formError(errs map[string]string) error {
	var parts []string
	for field, key := range errs {
		if field == setup.FieldBase && key == setup.ErrKeyConnection {
			parts = append(parts, "failed to connect to the printer")
			continue
		}
		parts = append(parts, field+": "+key)
	}
	return errors.New(strings.Join(parts, "; "))
}

func runOptions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("options", flag.ExitOnError)
	entryID := fs.String("entry", "", "config entry id")
	columnsA := fs.Int("columns-a", 0, "characters per line with font A (1-100)")
	columnsB := fs.Int("columns-b", 0, "characters per line with font B (1-100)")
	imageWidth := fs.Int("image-width", 0, "maximum image width in pixels (1-1000)")
	_ = fs.Parse(args)

	store, err := openStore()
	if err != nil {
		return err
	}

	res, err := setup.NewOptionsFlow(store, nil).Submit(ctx, *entryID, setup.OptionsInput{
		ColumnsFontA:  *columnsA,
		ColumnsFontB:  *columnsB,
		ImageMaxWidth: *imageWidth,
	})
	if err != nil {
		return err
	}
	if res.Type == setup.ResultForm {
		return formError(res.Errors)
	}
	fmt.Printf("Options saved: font A %d, font B %d, image width %d\n",
		res.Input.ColumnsFontA, res.Input.ColumnsFontB, res.Input.ImageMaxWidth)
	return nil
}

func runList() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	for _, e := range store.Entries() {
		s := e.Settings()
		fmt.Printf("%s  %-20s %-22s A=%d B=%d width=%d\n", e.ID, e.Title, e.Data.Host, s.ColumnsFontA, s.ColumnsFontB, s.ImageMaxWidth)
	}
	return nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	entryID := fs.String("entry", "", "config entry id")
	_ = fs.Parse(args)

	store, err := openStore()
	if err != nil {
		return err
	}
	return store.Remove(*entryID)
}

func runStatus(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	target := addTargetFlags(fs)
	_ = fs.Parse(args)

	client, err := target.client(cfg, log)
	if err != nil {
		return err
	}

	st, err := client.TestConnection(ctx)
	if err != nil {
		return err
	}

	state := status.Map(st.Online, st.PaperLevel)
	fmt.Printf("status: %s\n", state.Label())
	if paper := state.PaperLabel(); paper != "" {
		fmt.Printf("paper:  %s\n", paper)
	}
	if st.Error != "" {
		fmt.Printf("error:  %s\n", st.Error)
	}
	return nil
}
