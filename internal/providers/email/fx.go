package email

import (
	"strings"

	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/config"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig discards mail when no SMTP host is configured.
func NewFromConfig(cfg config.Config) Notifier {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		return Discard{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
