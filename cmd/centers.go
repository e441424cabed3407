package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/centers"
	"github.com/ecocollect/ecocollect-cli/internal/export"
	"github.com/ecocollect/ecocollect-cli/internal/location"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

var centersCmd = &cobra.Command{
	Use:   "centers",
	Short: "Browse collection centers",
	Long:  "Commands for listing, filtering and inspecting collection centers.",
}

// listOptions are the flags of centers list.
type listOptions struct {
	Search   string
	Types    []string
	OpenNow  bool
	MaxKm    float64
	Sort     string
	Lat, Lon float64
	HaveLoc  bool
	Format   string
	Out      string
}

func (o listOptions) filter() (model.FilterState, error) {
	key, err := model.ParseSortKey(o.Sort)
	if err != nil {
		return model.FilterState{}, err
	}
	if o.MaxKm < 0 {
		return model.FilterState{}, eris.New("--max-km must be >= 0")
	}
	return model.DefaultFilterState().
		WithSearch(o.Search).
		WithWasteTypes(o.Types...).
		WithOpenNow(o.OpenNow).
		WithMaxDistance(o.MaxKm).
		WithSort(key), nil
}

func (o listOptions) validate() error {
	if _, err := o.filter(); err != nil {
		return err
	}
	if _, err := export.ParseFormat(o.Format); err != nil {
		return err
	}
	_, err := o.location()
	return err
}

func (o listOptions) location() (*model.UserLocation, error) {
	if !o.HaveLoc {
		return nil, nil
	}
	if o.Lat < -90 || o.Lat > 90 || o.Lon < -180 || o.Lon > 180 {
		return nil, eris.Errorf("location %v,%v is out of range", o.Lat, o.Lon)
	}
	return &model.UserLocation{Latitude: o.Lat, Longitude: o.Lon}, nil
}

// locationFlags reads --lat/--lon, which must be given together.
func locationFlags(cmd *cobra.Command) (lat, lon float64, ok bool, err error) {
	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if latSet != lonSet {
		return 0, 0, false, eris.New("--lat and --lon must be given together")
	}
	if !latSet {
		return 0, 0, false, nil
	}
	lat, _ = cmd.Flags().GetFloat64("lat")
	lon, _ = cmd.Flags().GetFloat64("lon")
	return lat, lon, true, nil
}

// -- centers list --

var listOpts listOptions

var centersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List centers matching the filters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		lat, lon, ok, err := locationFlags(cmd)
		if err != nil {
			return err
		}
		listOpts.Lat, listOpts.Lon, listOpts.HaveLoc = lat, lon, ok
		return writeCentersList(cmd.Context(), listOpts)
	},
}

// writeCentersList validates opts before opening --out so a bad flag leaves
// an existing file untouched.
func writeCentersList(ctx context.Context, opts listOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	w, closeOut, err := openOutput(opts.Out, opts.Format)
	if err != nil {
		return err
	}
	defer closeOut()

	return runCentersList(ctx, w, opts)
}

func runCentersList(ctx context.Context, w io.Writer, opts listOptions) error {
	f, err := opts.filter()
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	loc, err := opts.location()
	if err != nil {
		return err
	}

	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	provider := env.Provider
	if loc != nil {
		provider = nil
	}
	sess, err := centers.Activate(ctx, env.Centers, provider, env.Checker)
	if err != nil {
		return err
	}
	if loc != nil {
		sess = sess.WithLocation(loc)
	}

	views := sess.Render(f, time.Now())
	resp := export.NewListResponse(views, env.Centers.Source(), env.Centers.Warning())
	return export.Write(w, format, resp)
}

// openOutput returns stdout or the --out file. Binary formats need --out.
func openOutput(path, format string) (io.Writer, func(), error) {
	if path == "" {
		if f, err := export.ParseFormat(format); err == nil && f.Binary() {
			return nil, nil, eris.Errorf("format %s requires --out", f)
		}
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "create output file")
	}
	return file, func() {
		if err := file.Close(); err != nil {
			zap.L().Warn("close output file", zap.String("path", path), zap.Error(err))
		}
	}, nil
}

// -- centers show --

var centersShowCmd = &cobra.Command{
	Use:   "show <center-id>",
	Short: "Show full details of a center",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return runCentersShow(cmd.Context(), os.Stdout, args[0], format)
	},
}

func runCentersShow(ctx context.Context, w io.Writer, id, format string) error {
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Centers.Load(ctx); err != nil {
		return err
	}
	d, err := centers.ViewDetails(ctx, env.Client, env.Centers, id)
	if err != nil {
		return err
	}

	if format == string(export.FormatJSON) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	return export.Detail(w, d.Center, d.Source, d.Warning)
}

// -- centers directions --

var centersDirectionsCmd = &cobra.Command{
	Use:   "directions <center-id>",
	Short: "Print a maps link to a center",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, ok, err := locationFlags(cmd)
		if err != nil {
			return err
		}
		var loc *model.UserLocation
		if ok {
			loc = &model.UserLocation{Latitude: lat, Longitude: lon}
		}
		return runCentersDirections(cmd.Context(), os.Stdout, args[0], loc)
	},
}

func runCentersDirections(ctx context.Context, w io.Writer, id string, loc *model.UserLocation) error {
	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	provider := env.Provider
	if loc != nil {
		provider = nil
	}
	sess, err := centers.Activate(ctx, env.Centers, provider, env.Checker)
	if err != nil {
		return err
	}
	if loc != nil {
		sess = sess.WithLocation(loc)
	}

	c, ok := env.Centers.GetByID(id)
	if !ok {
		return eris.Wrapf(centers.ErrNotFound, "id %s", id)
	}
	_, err = fmt.Fprintln(w, env.Directions.URL(c, sess.Location))
	return err
}

// -- centers nearby --

var centersNearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Ask the backend for centers near a point",
	Long:  "Queries the backend's nearby endpoint. When the backend is unreachable the loaded list is filtered locally by the same radius.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		lat, lon, ok, err := locationFlags(cmd)
		if err != nil {
			return err
		}
		var loc *model.UserLocation
		if ok {
			loc = &model.UserLocation{Latitude: lat, Longitude: lon}
		}
		radius, _ := cmd.Flags().GetFloat64("radius")
		format, _ := cmd.Flags().GetString("format")
		return runCentersNearby(cmd.Context(), os.Stdout, loc, radius, format)
	},
}

func runCentersNearby(ctx context.Context, w io.Writer, loc *model.UserLocation, radiusKm float64, format string) error {
	ff, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if ff.Binary() {
		return eris.Errorf("format %s is not supported by nearby", ff)
	}
	if radiusKm <= 0 {
		return eris.New("--radius must be > 0")
	}

	env, err := initCenters(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if loc == nil {
		loc = location.Resolve(ctx, env.Provider)
		if loc == nil {
			return eris.New("nearby needs a position: pass --lat and --lon or configure location.provider")
		}
	}
	// The radius is applied after the pipeline; the max-distance filter
	// stops limiting at UnrestrictedDistanceKm.
	f := model.DefaultFilterState().WithSort(model.SortByDistance)

	list, err := env.Client.NearbyCenters(ctx, loc.Latitude, loc.Longitude, radiusKm)
	if err == nil {
		converted := make([]model.Center, 0, len(list))
		for _, c := range list {
			converted = append(converted, centers.FromAPI(c))
		}
		valid, _ := centers.Validate(converted)
		views := centers.WithinRadius(centers.Apply(valid, f, loc, time.Now(), env.Checker), radiusKm)
		return export.Write(w, ff, export.NewListResponse(views, centers.SourceRemote, ""))
	}
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "centers nearby")
	}
	zap.L().Warn("nearby query failed, filtering loaded centers", zap.Error(err))

	if err := env.Centers.Load(ctx); err != nil {
		return err
	}
	views := centers.WithinRadius(centers.Apply(env.Centers.Centers(), f, loc, time.Now(), env.Checker), radiusKm)
	return export.Write(w, ff, export.NewListResponse(views, env.Centers.Source(), env.Centers.Warning()))
}

func init() {
	centersListCmd.Flags().StringVar(&listOpts.Search, "search", "", "match name, company or address (case-insensitive)")
	centersListCmd.Flags().StringSliceVar(&listOpts.Types, "type", nil, "accepted waste type; repeat or comma-separate to match any")
	centersListCmd.Flags().BoolVar(&listOpts.OpenNow, "open-now", false, "only centers open right now")
	centersListCmd.Flags().Float64Var(&listOpts.MaxKm, "max-km", model.UnrestrictedDistanceKm, "max distance in km; 50 or more disables the limit")
	centersListCmd.Flags().StringVar(&listOpts.Sort, "sort", string(model.SortByName), "sort by name, distance or rating")
	centersListCmd.Flags().Float64("lat", 0, "your latitude (overrides location.provider)")
	centersListCmd.Flags().Float64("lon", 0, "your longitude (overrides location.provider)")
	centersListCmd.Flags().StringVar(&listOpts.Format, "format", string(export.FormatTable), "output format: table, json, geojson or xlsx")
	centersListCmd.Flags().StringVar(&listOpts.Out, "out", "", "write output to a file instead of stdout")

	centersShowCmd.Flags().String("format", string(export.FormatTable), "output format: table or json")

	centersDirectionsCmd.Flags().Float64("lat", 0, "your latitude (overrides location.provider)")
	centersDirectionsCmd.Flags().Float64("lon", 0, "your longitude (overrides location.provider)")

	centersNearbyCmd.Flags().Float64("lat", 0, "latitude to search around")
	centersNearbyCmd.Flags().Float64("lon", 0, "longitude to search around")
	centersNearbyCmd.Flags().Float64("radius", 10, "search radius in km")
	centersNearbyCmd.Flags().String("format", string(export.FormatTable), "output format: table, json or geojson")

	centersCmd.AddCommand(centersListCmd)
	centersCmd.AddCommand(centersShowCmd)
	centersCmd.AddCommand(centersDirectionsCmd)
	centersCmd.AddCommand(centersNearbyCmd)
	rootCmd.AddCommand(centersCmd)
}
