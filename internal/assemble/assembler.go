package assemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/dabtools/epgdc/internal/log"
	"github.com/dabtools/epgdc/internal/spi"
)

// ErrNoServices is fatal to the run: no output of any kind is produced.
var ErrNoServices = errors.New("assemble: no services discovered")

// Ensemble identifies and labels the target multiplex for SI annotation.
type Ensemble struct {
	ECC        uint8
	EID        uint16
	Label      string
	ShortLabel string
}

// Assemble appends the consolidated SI object to the already-ordered logo
// and PI objects. The SI object is always last; the packaging stage
// relies on that for directory-header placement. With zero services the
// run aborts and nothing is emitted.
func Assemble(ctx context.Context, objects []Object, services []spi.Service, ens Ensemble) ([]Object, error) {
	logger := log.WithComponentFromContext(ctx, "assemble")

	if len(services) == 0 {
		return nil, ErrNoServices
	}

	si := &spi.ServiceInformation{Services: services}
	body, err := spi.MarshalSI(si, spi.EnsembleContext{
		ECC:        ens.ECC,
		EID:        ens.EID,
		Label:      ens.Label,
		ShortLabel: ens.ShortLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize SI: %w", err)
	}

	siObject := Object{
		Name:    "SI.xml",
		Body:    body,
		Type:    ContentEPGService,
		ScopeID: ScopeIDForEnsemble(ens.ECC, ens.EID),
	}
	out := append(append([]Object(nil), objects...), siObject)

	logger.Info().
		Str("event", "assemble.complete").
		Int("objects", len(out)).
		Int("services", len(services)).
		Str("scope_id", spi.ScopeIDEnsemble(ens.ECC, ens.EID)).
		Msg("object set assembled")
	return out, nil
}
