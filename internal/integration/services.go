package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/printer"
)

const (
	ServicePrintText  = "print_text"
	ServicePrintImage = "print_image"
	ServicePrintQR    = "print_qr"
)

var ErrUnknownService = errors.New("unknown service")

// Services lists the services every entry provides
func Services() []string {
	return []string{ServicePrintText, ServicePrintImage, ServicePrintQR}
}

// CallService decodes data for service, applying the service defaults, and
// runs it on the entry's printer. Bad input is reported as *printer.Error.
func (m *Manager) CallService(ctx context.Context, id, service string, data []byte) error {
	client, ok := m.Client(id)
	if !ok {
		return ErrNotLoaded
	}

	log := m.log.WithFields(logrus.Fields{"entry": id, "service": service})
	log.Debug("service called")

	var err error
	switch service {
	case ServicePrintText:
		job := printer.NewTextJob("")
		if err = decode(data, "text", &job); err == nil {
			err = client.PrintText(ctx, job)
		}
	case ServicePrintImage:
		job := printer.NewImageJob("")
		if err = decode(data, "image_path", &job); err == nil {
			err = client.PrintImage(ctx, job)
		}
	case ServicePrintQR:
		job := printer.NewQRJob("")
		if err = decode(data, "content", &job); err == nil {
			err = client.PrintQR(ctx, job)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	if err != nil {
		log.WithError(err).Error("service failed")
	}
	return err
}

// decode unmarshals data over the defaults already in v and checks that
// the required key is present
func decode(data []byte, required string, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &printer.Error{Msg: "invalid service data", Err: err}
	}
	if _, ok := fields[required]; !ok {
		return &printer.Error{Msg: fmt.Sprintf("required key not provided: %s", required)}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &printer.Error{Msg: "invalid service data", Err: err}
	}
	return nil
}
