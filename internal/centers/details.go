package centers

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/model"
	"github.com/ecocollect/ecocollect-cli/pkg/ecoapi"
)

// ErrNotFound is returned when no center has the requested id.
var ErrNotFound = eris.New("centers: center not found")

// Detail sources.
const (
	DetailRemote  = "remote"
	DetailSummary = "summary"
)

// WarningSummary marks a detail served from the summary record.
const WarningSummary = "showing saved summary; details unavailable"

// CenterFetcher is the part of the backend client ViewDetails needs.
type CenterFetcher interface {
	GetCenter(ctx context.Context, id string) (*ecoapi.Center, error)
}

// Detail is a center record for the detail view.
type Detail struct {
	Center  model.Center `json:"center"`
	Source  string       `json:"source"`
	Warning string       `json:"warning,omitempty"`
}

// ViewDetails requests the richer record for id from the backend. When
// that fails, the summary record already held by st is returned instead.
// Remote fields that come back empty are filled from the summary.
func ViewDetails(ctx context.Context, fetcher CenterFetcher, st *Store, id string) (Detail, error) {
	id = strings.TrimSpace(id)
	summary, haveSummary := st.GetByID(id)

	if fetcher != nil {
		remote, err := fetcher.GetCenter(ctx, id)
		if err == nil {
			c := FromAPI(*remote)
			if c.Valid() {
				if haveSummary {
					c = mergeDetail(summary, c)
				}
				return Detail{Center: c, Source: DetailRemote}, nil
			}
			err = eris.New("centers: detail record missing id or name")
		}
		if ctx.Err() != nil {
			return Detail{}, eris.Wrap(ctx.Err(), "centers: view details")
		}
		if !haveSummary {
			if ecoapi.IsNotFound(err) {
				return Detail{}, eris.Wrapf(ErrNotFound, "id %s", id)
			}
			return Detail{}, eris.Wrapf(ErrNotFound, "id %s (detail fetch failed: %v)", id, err)
		}
		zap.L().Warn("detail fetch failed, using summary", zap.String("id", id), zap.Error(err))
	}

	if !haveSummary {
		return Detail{}, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return Detail{Center: summary, Source: DetailSummary, Warning: WarningSummary}, nil
}

func mergeDetail(summary, remote model.Center) model.Center {
	out := remote
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&out.Company, summary.Company)
	fill(&out.Address, summary.Address)
	fill(&out.Phone, summary.Phone)
	fill(&out.Email, summary.Email)
	fill(&out.Hours, summary.Hours)
	fill(&out.Description, summary.Description)
	if out.Latitude == nil || out.Longitude == nil {
		out.Latitude, out.Longitude = summary.Latitude, summary.Longitude
	}
	if out.Rating == nil {
		out.Rating = summary.Rating
	}
	if len(out.AcceptedWasteTypes) == 0 {
		out.AcceptedWasteTypes = summary.AcceptedWasteTypes
	}
	return out
}
