package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"uvp"
	"uvp/adapter/rss"
	"uvp/adapter/single"
	_ "uvp/adapters"
	"uvp/async"
	"uvp/database"
	"uvp/internal/engine"
	"uvp/internal/fetchcache"
	"uvp/player"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := newApp(ctx)
	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		stop()
		err = <-result
		if err != nil {
			logger.Fatal(err.Error())
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "uvp")
}

func newApp(ctx context.Context) *cli.App {
	return &cli.App{
		Name:  "uvp",
		Usage: "track video feeds and play what they publish",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Value: filepath.Join(defaultDataDir(), "uvp.db"),
				Usage: "video database `PATH`",
			},
			&cli.StringFlag{
				Name:  "cache",
				Value: filepath.Join(defaultDataDir(), "fetch-cache.db"),
				Usage: "feed fetch cache `PATH` (empty to disable)",
			},
			&cli.StringFlag{
				Name:  "player",
				Value: player.DefaultConfig.Binary,
				Usage: "media player `BINARY`",
			},
			&cli.StringSliceFlag{
				Name:  "player-arg",
				Usage: "extra argument passed to the player (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "reactivate-removed",
				Usage: "re-discovered removed videos become available again",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "add-feed",
				Usage:     "subscribe to a video feed",
				ArgsUsage: "DESCRIPTOR",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Value: string(uvp.FeedKindChannel),
						Usage: "feed `KIND` (channel, query, single, generic)",
					},
					&cli.StringFlag{
						Name:  "label",
						Usage: "human-readable `LABEL` (defaults to the descriptor)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("%w: expected exactly one feed descriptor", uvp.ErrValidation)
					}
					kind, err := uvp.ParseFeedKind(c.String("kind"))
					if err != nil {
						return err
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					feed, err := env.engine.AddFeed(kind, c.Args().First(), c.String("label"))
					if err != nil {
						return err
					}
					fmt.Printf("%s\t%s\t%s\n", feed.ID, feed.Kind, feed.Label)
					return nil
				},
			},
			{
				Name:      "add-video",
				Usage:     "add a single video by URL",
				ArgsUsage: "URL...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "explicit `TITLE` (overrides whatever the URL resolves to)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return fmt.Errorf("%w: expected at least one URL", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					for _, url := range c.Args().Slice() {
						v, err := env.engine.AddVideo(ctx, url, c.String("title"))
						if err != nil {
							return err
						}
						fmt.Printf("%s\t%s\n", v.ID, v.Title)
					}
					return nil
				},
			},
			{
				Name:      "refresh",
				Usage:     "fetch feeds and merge new videos",
				ArgsUsage: "[FEED...]",
				Action: func(c *cli.Context) error {
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					return refresh(ctx, env.engine, c.Args().Slice())
				},
			},
			{
				Name:  "list-feeds",
				Usage: "list subscribed feeds",
				Action: func(c *cli.Context) error {
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					feeds, err := env.engine.ListFeeds()
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					for _, f := range feeds {
						lastSync := "never"
						if f.LastSync != nil {
							lastSync = f.LastSync.Local().Format(time.DateTime)
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Kind, f.Label, lastSync)
					}
					return w.Flush()
				},
			},
			{
				Name:  "list-videos",
				Usage: "list videos",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "only videos in `STATE` (available, active, removed)",
					},
					&cli.StringFlag{
						Name:  "feed",
						Usage: "only videos from `FEED` (id or label)",
					},
				},
				Action: func(c *cli.Context) error {
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					var filter database.Filter
					if s := c.String("state"); s != "" {
						state, err := database.ParseVideoState(s)
						if err != nil {
							return fmt.Errorf("%w: unknown state %q", uvp.ErrValidation, s)
						}
						filter.State = &state
					}
					if f := c.String("feed"); f != "" {
						feed, err := env.db.FindFeed(f)
						if err != nil {
							return err
						}
						filter.FeedID = &feed.ID
					}
					videos, err := env.engine.ListVideos(filter)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					for _, v := range videos {
						feedLabel := "-"
						if v.FeedLabel != nil {
							feedLabel = *v.FeedLabel
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.State, feedLabel, v.Title)
					}
					return w.Flush()
				},
			},
			{
				Name:      "play",
				Usage:     "play a video, remembering where playback stopped",
				ArgsUsage: "VIDEO",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("%w: expected exactly one video id or URL", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					outcome, err := env.player.Play(ctx, c.Args().First())
					if err != nil {
						return err
					}
					if outcome.Finished {
						fmt.Printf("finished: %s\n", outcome.Video.Title)
					} else if outcome.PositionSecs > 0 {
						fmt.Printf("stopped at %s: %s\n",
							(time.Duration(outcome.PositionSecs) * time.Second).String(), outcome.Video.Title)
					}
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a video from rotation",
				ArgsUsage: "VIDEO...",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return fmt.Errorf("%w: expected at least one video id or URL", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					for _, arg := range c.Args().Slice() {
						v, err := env.engine.Remove(arg)
						if err != nil {
							return err
						}
						fmt.Printf("removed: %s\n", v.Title)
					}
					return nil
				},
			},
			{
				Name:  "undo",
				Usage: "restore the most recently removed video",
				Action: func(c *cli.Context) error {
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					v, err := env.engine.UndoRemove()
					if err != nil {
						return err
					}
					fmt.Printf("restored: %s (%s)\n", v.Title, v.State)
					return nil
				},
			},
			{
				Name:      "requeue",
				Usage:     "put an active video back in the available queue",
				ArgsUsage: "VIDEO",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("%w: expected exactly one video id or URL", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					v, err := env.engine.Deactivate(c.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("requeued: %s\n", v.Title)
					return nil
				},
			},
			{
				Name:      "rename-feed",
				Usage:     "change a feed's label",
				ArgsUsage: "FEED LABEL",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("%w: expected a feed and a new label", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					return env.engine.RenameFeed(c.Args().Get(0), c.Args().Get(1))
				},
			},
			{
				Name:      "remove-feed",
				Usage:     "unsubscribe from a feed",
				ArgsUsage: "FEED",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "cascade",
						Usage: "also remove the feed's videos",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("%w: expected exactly one feed id or label", uvp.ErrValidation)
					}
					env, err := openEnv(c)
					if err != nil {
						return err
					}
					defer env.Close()
					return env.engine.RemoveFeed(c.Args().First(), c.Bool("cascade"))
				},
			},
		},
		HideHelpCommand: true,
	}
}

// env holds everything a command needs, opened lazily so that help output
// never touches the filesystem.
type env struct {
	db     *database.Database
	cache  *fetchcache.Cache
	engine *engine.Engine
	player *player.Coordinator
}

func openEnv(c *cli.Context) (*env, error) {
	logger := zap.S().Named("cli")

	dbPath := c.String("db")
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	// The fetch cache is an optimization; refusing to run without it would
	// be backwards.
	var cache *fetchcache.Cache
	if cachePath := c.String("cache"); cachePath != "" {
		cache, err = fetchcache.Open(cachePath)
		if err != nil {
			logger.Warnf("fetch cache unavailable, continuing without: %v", err)
			cache = nil
		}
	}

	adapters := uvp.NewAdapterRegistry()
	rss.New(rss.Config{Cache: cache}).RegisterAll(adapters)
	adapters.MustRegister(uvp.FeedKindSingle, single.New(&uvp.DefaultResolverRegistry))

	engineConfig := engine.DefaultConfig
	engineConfig.Store = db
	engineConfig.Adapters = adapters
	engineConfig.Resolvers = &uvp.DefaultResolverRegistry
	engineConfig.ReactivateRemoved = c.Bool("reactivate-removed")
	eng, err := engine.New(engineConfig)
	if err != nil {
		db.Close()
		return nil, err
	}

	playerConfig := player.DefaultConfig
	playerConfig.Binary = c.String("player")
	if extra := c.StringSlice("player-arg"); len(extra) > 0 {
		playerConfig.ExtraArgs = extra
	}

	return &env{
		db:     db,
		cache:  cache,
		engine: eng,
		player: player.New(playerConfig, db),
	}, nil
}

func (e *env) Close() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			zap.S().Warnf("failed to close fetch cache: %v", err)
		}
	}
	e.db.Close()
}

func refresh(ctx context.Context, eng *engine.Engine, feeds []string) error {
	count := len(feeds)
	if count == 0 {
		all, err := eng.ListFeeds()
		if err != nil {
			return err
		}
		count = len(all)
	}
	if count == 0 {
		fmt.Println("no feeds to refresh")
		return nil
	}

	bar := progressbar.Default(int64(count), "refreshing")
	summary, err := eng.Refresh(ctx, engine.RefreshOptions{
		Feeds: feeds,
		Progress: func(engine.FeedResult) {
			_ = bar.Add(1)
		},
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, res := range summary.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", res.Feed.Label, res.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d new\t%d reactivated\t%d unchanged\n",
			res.Feed.Label, res.Merge.Added, res.Merge.Reactivated, res.Merge.Unchanged+res.Merge.Refreshed)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	totals := summary.Totals()
	fmt.Printf("%d videos across %d feeds: %d new, %d reactivated\n",
		totals.Total(), len(summary.Results), totals.Added, totals.Reactivated)
	return summary.Err()
}
