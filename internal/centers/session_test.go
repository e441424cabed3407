package centers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocollect/ecocollect-cli/internal/location"
	"github.com/ecocollect/ecocollect-cli/internal/model"
	"github.com/ecocollect/ecocollect-cli/pkg/ecoapi"
)

type deniedProvider struct{}

func (deniedProvider) Locate(context.Context) (*model.UserLocation, error) {
	return nil, errors.New("permission denied")
}

// blockingLoader waits for ctx so activation can be cancelled mid-fetch.
type blockingLoader struct{}

func (blockingLoader) Load(ctx context.Context) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestActivate_WithLocation(t *testing.T) {
	st := NewStore(NewResilientSource(NewRemoteSource(&fakeLister{err: errors.New("offline")}, ecoapi.CenterQuery{})))
	loc := location.StaticProvider{Latitude: -1.2921, Longitude: 36.8219}

	sess, err := Activate(context.Background(), st, loc, nil)
	require.NoError(t, err)
	require.NotNil(t, sess.Location)

	views := sess.Render(model.DefaultFilterState().WithSort(model.SortByDistance), monday10)
	require.Len(t, views, 3)
	// Green Cycle Kilimani sits at the user's position.
	assert.Equal(t, "2", views[0].ID)
	for _, v := range views {
		assert.NotNil(t, v.DistanceKm)
	}
}

func TestActivate_LocationDenied(t *testing.T) {
	st := NewStore(NewResilientSource(nil))
	sess, err := Activate(context.Background(), st, deniedProvider{}, nil)
	require.NoError(t, err)
	assert.Nil(t, sess.Location)

	views := sess.Render(model.DefaultFilterState().WithSort(model.SortByDistance), monday10)
	assert.Equal(t, []string{"1", "2", "3"}, ids(views))
}

func TestActivate_NoProvider(t *testing.T) {
	st := NewStore(NewResilientSource(nil))
	sess, err := Activate(context.Background(), st, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sess.Location)
	assert.Len(t, st.Centers(), 3)
}

func TestActivate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Activate(ctx, NewStore(blockingLoader{}), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_WithLocation(t *testing.T) {
	st := loadedStore(t, DefaultFixture())
	sess := &Session{Store: st}

	moved := sess.WithLocation(&model.UserLocation{Latitude: -1.263, Longitude: 36.8063})
	assert.Nil(t, sess.Location)
	views := moved.Render(model.DefaultFilterState().WithSort(model.SortByDistance), monday10)
	assert.Equal(t, "3", views[0].ID)
}
