// transfers-update runs the incremental transfer-precomputation engine:
// extracting OSM platforms, matching them to timetable locations,
// generating and routing transfer requests, and writing the resulting
// footpaths back into a timetable dump.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"go.skia.org/transfers/go/config"
	"go.skia.org/transfers/go/sklog"
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/matching"
	"go.skia.org/transfers/transfers/platform/extract"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/router/naive"
	"go.skia.org/transfers/transfers/store"
	"go.skia.org/transfers/transfers/timetable"
	"go.skia.org/transfers/transfers/updater"
)

var (
	configFlag = flag.String("config", "", "Path to the engine's JSON5 configuration file.")
	mode       = flag.String("mode", "full", "One of: full, partial.")
	firstStage = flag.String("first_stage", "none", "For -mode=partial: one of none, profiles, timetable, osm.")
	routing    = flag.String("routing", "partial", "For -mode=partial: one of none, partial, full.")
)

// ProfileConfig is one named pedestrian routing profile as read from the
// config file.
type ProfileConfig struct {
	WalkingSpeedMPS float64 `json:"walking_speed_mps"`
	DurationLimitS  float64 `json:"duration_limit_s"`
}

// Config mirrors the configuration surface named in §6: store location and
// size, OSM/router/output paths, matching radii, and the profile set.
type Config struct {
	DBFilePath             string                   `json:"db_file_path"`
	DBMaxSize              int64                    `json:"db_max_size"`
	OSMPath                string                   `json:"osm_path"`
	PPRRGPath              string                   `json:"ppr_rg_path"`
	NigiriDumpPath         string                   `json:"nigiri_dump_path"`
	MaxMatchingDist        float64                  `json:"max_matching_dist"`
	MaxBusStopMatchingDist float64                  `json:"max_bus_stop_matching_dist"`
	Parallelism            int                      `json:"parallelism"`
	Profiles               map[string]ProfileConfig `json:"profiles"`
}

func (c Config) matchOptions() matching.Options {
	opts := matching.DefaultOptions()
	if c.MaxMatchingDist > 0 {
		opts.MaxMatchingDistM = c.MaxMatchingDist
	}
	if c.MaxBusStopMatchingDist > 0 {
		opts.MaxBusStopMatchingDistM = c.MaxBusStopMatchingDist
	}
	return opts
}

func (c Config) profileParams() map[string]profile.Params {
	out := make(map[string]profile.Params, len(c.Profiles))
	for name, p := range c.Profiles {
		out[name] = profile.Params{WalkingSpeedMPS: p.WalkingSpeedMPS, DurationLimitS: p.DurationLimitS}
	}
	return out
}

func parseStage(s string) updater.Stage {
	switch s {
	case "profiles":
		return updater.StageProfiles
	case "timetable":
		return updater.StageTimetable
	case "osm":
		return updater.StageOSM
	default:
		return updater.StageNone
	}
}

func parseRoutingMode(s string) updater.RoutingMode {
	switch s {
	case "partial":
		return updater.RoutingPartial
	case "full":
		return updater.RoutingFull
	default:
		return updater.RoutingNone
	}
}

func main() {
	flag.Parse()
	if *configFlag == "" {
		sklog.Fatalf("-config is required")
	}

	var cfg Config
	if err := config.ParseConfigFile(*configFlag, "config", &cfg); err != nil {
		sklog.Fatalf("%s", err)
	}

	s, err := store.Open(cfg.DBFilePath)
	if err != nil {
		sklog.Fatalf("opening store: %s", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			sklog.Errorf("closing store: %s", err)
		}
	}()

	tt, err := loadTimetable(cfg.NigiriDumpPath)
	if err != nil {
		sklog.Fatalf("loading timetable: %s", err)
	}

	profiles := cfg.profileParams()
	profilesByID, err := profileIDMap(s, profiles)
	if err != nil {
		sklog.Fatalf("allocating profile ids: %s", err)
	}
	u := &updater.Updater{
		Store:     s,
		Timetable: tt,
		Extractor: &extract.Extractor{Opener: osmOpener(cfg.OSMPath)},
		Router:    &naive.Router{Profiles: profilesByID},
		Profiles:  profiles,
		MatchOpts: cfg.matchOptions(),
		DumpPath:  cfg.NigiriDumpPath,
	}
	if cfg.Parallelism > 0 {
		u.Parallelism = cfg.Parallelism
	}

	ctx := context.Background()
	switch *mode {
	case "full":
		if err := u.FullUpdate(ctx); err != nil {
			sklog.Fatalf("full update: %s", err)
		}
	case "partial":
		if err := u.PartialUpdate(ctx, parseStage(*firstStage), parseRoutingMode(*routing)); err != nil {
			sklog.Fatalf("partial update: %s", err)
		}
	default:
		sklog.Fatalf("unknown -mode %q", *mode)
	}
	sklog.Infof("done")
}

func osmOpener(path string) extract.Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// profileIDMap allocates (or reuses) persistent ids for the configured
// profile names, keyed by id the way naive.Router and the router driver
// expect.
func profileIDMap(s *store.Store, profiles map[string]profile.Params) (map[transfers.ProfileID]profile.Params, error) {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	nameToID, err := s.PutProfiles(names)
	if err != nil {
		return nil, err
	}
	out := make(map[transfers.ProfileID]profile.Params, len(nameToID))
	for name, id := range nameToID {
		out[id] = profiles[name]
	}
	return out, nil
}

func loadTimetable(path string) (timetable.Timetable, error) {
	// The timetable container is an external collaborator (§1): this
	// engine only ever reads its locations and writes its footpaths. A
	// real deployment wires in the host's timetable implementation here;
	// lacking one, an empty in-memory timetable keeps this binary runnable
	// for OSM-extraction and matching dry runs.
	return timetable.NewInMemory(nil), nil
}
