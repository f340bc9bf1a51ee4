package scrapers_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	writes map[string]any
}

func (s *memorySink) Write(_ context.Context, dst sink.Destination, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = map[string]any{}
	}
	s.writes[dst.Path()] = value
	return nil
}

type runLog struct {
	mu       sync.Mutex
	started  []string
	finished map[string]int
	failed   []string
	names    map[uuid.UUID]string
}

func (r *runLog) Start(_ context.Context, game, dataset string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	if r.names == nil {
		r.names, r.finished = map[uuid.UUID]string{}, map[string]int{}
	}
	r.names[id] = game + "/" + dataset
	r.started = append(r.started, game+"/"+dataset)
	return id, nil
}

func (r *runLog) Finish(_ context.Context, id uuid.UUID, records int, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := r.names[id]
	r.finished[name] = records
	if runErr != nil {
		r.failed = append(r.failed, name)
	}
	return nil
}

type noPages struct{}

func (noPages) Fetch(context.Context, string) (string, error)   { return "", errors.New("offline") }
func (noPages) Refresh(context.Context, string) (string, error) { return "", errors.New("offline") }
func (noPages) URL(route string) string                         { return route }

func TestSelect(t *testing.T) {
	tcs := []struct {
		Name   string
		Game   string
		Names  []string
		Expect []string
		Err    bool
	}{
		{Name: "registry order", Game: scrapers.GameStarRail, Names: []string{"短信", "角色一览"}, Expect: []string{"角色一览", "短信"}},
		{Name: "single", Game: scrapers.GameGenshin, Names: []string{"黑话"}, Expect: []string{"黑话"}},
		{Name: "unknown dataset", Game: scrapers.GameGenshin, Names: []string{"不存在"}, Err: true},
		{Name: "unknown game", Game: "zzz", Err: true},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			got, err := scrapers.Select(tc.Game, tc.Names...)
			if tc.Err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, d := range got {
				names = append(names, d.Name())
			}
			require.Equal(t, tc.Expect, names)
		})
	}
}

func TestRegistries(t *testing.T) {
	tcs := []struct {
		Game  string
		Count int
	}{
		{Game: scrapers.GameGenshin, Count: 25},
		{Game: scrapers.GameStarRail, Count: 12},
	}

	for _, tc := range tcs {
		t.Run(tc.Game, func(t *testing.T) {
			all, err := scrapers.Select(tc.Game)
			require.NoError(t, err)
			require.Len(t, all, tc.Count)

			seen := map[string]bool{}
			for _, d := range all {
				require.Equal(t, tc.Game, d.Game)
				require.NotNil(t, d.Run)
				require.False(t, seen[d.Destination().Path()], "duplicate %s", d.File)
				seen[d.Destination().Path()] = true
			}
		})
	}
}

func TestRunDatasets(t *testing.T) {
	site, err := scrapers.NewSite(scrapers.GameGenshin, noPages{})
	require.NoError(t, err)

	datasets := []scrapers.Dataset{
		{Game: scrapers.GameGenshin, Dir: "任务", File: "好.json", Run: func(context.Context, *scrapers.Site) (any, error) {
			o := scrapers.NewObject()
			o.Set("a", "1")
			o.Set("b", "2")
			return o, nil
		}},
		{Game: scrapers.GameGenshin, Dir: "任务", File: "坏.json", Run: func(ctx context.Context, s *scrapers.Site) (any, error) {
			_, err := s.Document(ctx, "/ys/x")
			return nil, err
		}},
	}

	out := &memorySink{}
	runs := &runLog{}
	err = scrapers.RunDatasets(context.Background(), site, datasets, out,
		scrapers.WithRuns(runs), scrapers.WithLimit(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "genshin/坏")
	require.NotContains(t, err.Error(), "genshin/好")

	require.Len(t, out.writes, 1)
	require.Contains(t, out.writes, "任务/好.json")

	require.ElementsMatch(t, []string{"genshin/好", "genshin/坏"}, runs.started)
	require.Equal(t, 2, runs.finished["genshin/好"])
	require.Equal(t, []string{"genshin/坏"}, runs.failed)
}
