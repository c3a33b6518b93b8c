package providers

import (
	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/providers/email"
	"github.com/Franc-dev/donate-artist/internal/providers/pdf"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
