package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/workers"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseCrawlJob(t *testing.T) {
	runID := uuid.New()
	tcs := []struct {
		Name      string                      `json:"-"`
		TestError func(t *testing.T, e error) `json:"-"`
		RunID     uuid.UUID                   `json:"run_id"`
		Game      any                         `json:"game"`
		Datasets  any                         `json:"datasets,omitempty"`
		Force     bool                        `json:"force"`
	}{
		{
			Name:     "Valid Star Rail Job",
			RunID:    runID,
			Game:     scrapers.GameStarRail,
			Datasets: []string{"角色一览"},
			Force:    true,
		},
		{
			Name:  "Valid Job Without Datasets",
			RunID: runID,
			Game:  scrapers.GameGenshin,
		},
		{
			Name: "Unknown Game",
			TestError: func(t *testing.T, e error) {
				require.ErrorIs(t, e, ec.ErrValidationFailed)
			},
			RunID: runID,
			Game:  "zzz",
		},
		{
			Name: "Invalid Game Type",
			TestError: func(t *testing.T, e error) {
				require.ErrorIs(t, e, ec.ErrUnmarshalFailed)
				require.Contains(t, e.Error(), "cannot unmarshal number into Go struct field")
			},
			RunID: runID,
			Game:  123,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			data, err := json.Marshal(tc)
			require.NoError(t, err, "Failed to marshal test case")

			job, err := workers.ParseCrawlJob(data)
			if tc.TestError != nil {
				tc.TestError(t, err)
				require.True(t, workers.Permanent(err))
				return
			}
			require.NoError(t, err)
			serialize, err := json.Marshal(job)
			require.NoError(t, err, "Failed to marshal CrawlJob")
			require.JSONEq(t, string(data), string(serialize))
		})
	}
}

type jetStream struct {
	msgs []*nats.Msg
}

func (js *jetStream) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	js.msgs = append(js.msgs, m)
	return &nats.PubAck{Stream: "LOREKEEPER", Sequence: uint64(len(js.msgs))}, nil
}

func TestEnqueue(t *testing.T) {
	js := &jetStream{}
	job, err := workers.Enqueue(context.Background(), js, workers.CrawlJob{
		Game:     scrapers.GameGenshin,
		Datasets: []string{"黑话"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, job.RunID)
	require.Len(t, js.msgs, 1)
	require.Equal(t, workers.SubjectCrawl, js.msgs[0].Subject)

	got, err := workers.ParseCrawlJob(js.msgs[0].Data)
	require.NoError(t, err)
	require.Equal(t, job, got)

	_, err = workers.Enqueue(context.Background(), js, workers.CrawlJob{Game: "zzz"})
	require.ErrorIs(t, err, ec.ErrValidationFailed)
	require.Len(t, js.msgs, 1)
}

type offline struct{}

func (offline) Fetch(context.Context, string) (string, error)   { return "", errors.New("offline") }
func (offline) Refresh(context.Context, string) (string, error) { return "", errors.New("offline") }
func (offline) URL(route string) string                         { return route }

type discard struct {
	writes int
}

func (d *discard) Write(context.Context, sink.Destination, any) error {
	d.writes++
	return nil
}

func TestCrawlWorkerHandle(t *testing.T) {
	base, err := workers.NewBaseWorker(nil, zerolog.Nop(), global.Tracer("workers_test"))
	require.NoError(t, err)

	var forced []bool
	sites := func(_ context.Context, game string, force bool) (*scrapers.Site, error) {
		forced = append(forced, force)
		return scrapers.NewSite(game, offline{})
	}
	out := &discard{}
	cfg := &global.WorkerConfig{Stream: "LOREKEEPER", Consumer: "crawl-worker", Timeout: time.Hour}
	w := workers.NewCrawlWorker(base, cfg, sites, out, nil, 1)

	require.Equal(t, workers.SubjectCrawl, w.Subject())
	require.Equal(t, []string{"lorekeeper.jobs.>"}, w.StreamConfig().Subjects)
	require.Equal(t, "crawl-worker", w.ConsumerConfig().Durable)
	require.Greater(t, w.ConsumerConfig().AckWait, cfg.Timeout)

	tcs := []struct {
		Name      string
		Data      string
		Permanent bool
	}{
		{Name: "not json", Data: "{", Permanent: true},
		{Name: "unknown dataset", Data: `{"game":"genshin","datasets":["不存在"]}`, Permanent: true},
		{Name: "dataset failure", Data: `{"game":"genshin","datasets":["黑话"],"force":true}`},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			err := w.Handle(context.Background(), &nats.Msg{Subject: workers.SubjectCrawl, Data: []byte(tc.Data)})
			require.Error(t, err)
			require.Equal(t, tc.Permanent, workers.Permanent(err))
		})
	}
	require.Equal(t, []bool{true}, forced, "the site is only built for runnable jobs")
	require.Zero(t, out.writes)
}

type settled struct {
	acked, naked, termed bool
	delay                time.Duration
}

func (s *settled) Ack(...nats.AckOpt) error { s.acked = true; return nil }
func (s *settled) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	s.naked, s.delay = true, d
	return nil
}
func (s *settled) Term(...nats.AckOpt) error { s.termed = true; return nil }

func TestSettle(t *testing.T) {
	tcs := []struct {
		Name   string
		Err    error
		Expect settled
	}{
		{Name: "ack", Expect: settled{acked: true}},
		{Name: "term", Err: ec.ErrBadRequest.Clone().WithDetails("unknown dataset"), Expect: settled{termed: true}},
		{Name: "nak", Err: ec.ErrFetchFailed.Clone(), Expect: settled{naked: true, delay: time.Second}},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			msg := &settled{}
			workers.Settle(zerolog.Nop(), msg, tc.Err, time.Second)
			require.Equal(t, tc.Expect, *msg)
		})
	}
}
