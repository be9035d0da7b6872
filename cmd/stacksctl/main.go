package main

import (
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/stacks/pkg/attributes"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/migrations"
	"github.com/shishobooks/stacks/pkg/queue"
	"github.com/urfave/cli/v2"
)

// services is built in the app's Before hook so --help works without a
// database.
type services struct {
	store      *database.Store
	content    *content.Service
	queue      *queue.Service
	attributes *attributes.Service
}

func main() {
	log := logger.New()
	svcs := &services{}

	app := &cli.App{
		Name:  "stacksctl",
		Usage: "administer a stacks library without going through the API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			store, err := database.New(cfg)
			if err != nil {
				return err
			}
			if _, err := migrations.BringUpToDate(c.Context, store.DB); err != nil {
				return err
			}
			svcs.store = store
			svcs.content = content.NewService(store, nil)
			svcs.queue = queue.NewService(store, nil)
			svcs.attributes = attributes.NewService(store, nil)
			return nil
		},
		After: func(_ *cli.Context) error {
			if svcs.store != nil {
				return svcs.store.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			queueCommand(svcs),
			cleanupCommand(svcs),
			attributesCommand(svcs),
			{
				Name:  "counts",
				Usage: "print how many books are in the library and in the queue",
				Action: func(c *cli.Context) error {
					library, err := svcs.content.CountLibrary(c.Context)
					if err != nil {
						return err
					}
					queued, err := svcs.content.CountQueued(c.Context)
					if err != nil {
						return err
					}
					return output(c, map[string]int{"library": library, "queue": queued}, func() {
						fmt.Printf("Library: %d\nQueue: %d\n", library, queued)
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func queueCommand(svcs *services) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "inspect and control the download queue",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "print the queue in order",
				Action: func(c *cli.Context) error {
					entries, err := svcs.queue.List(c.Context)
					if err != nil {
						return err
					}
					return output(c, entries, func() {
						for _, e := range entries {
							fmt.Printf("%3d  #%-6d %-12s %s\n", e.Position, e.Content.ID, e.Content.Status, e.Content.Title)
						}
					})
				},
			},
			{
				Name:  "pause",
				Usage: "pause every downloading book",
				Action: func(c *cli.Context) error {
					n, err := svcs.queue.Pause(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Paused %d books\n", n)
					return nil
				},
			},
			{
				Name:  "resume",
				Usage: "resume every paused book",
				Action: func(c *cli.Context) error {
					n, err := svcs.queue.Resume(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Resumed %d books\n", n)
					return nil
				},
			},
			{
				Name:  "move",
				Usage: "move the book at one position to another",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "from", Required: true},
					&cli.IntFlag{Name: "to", Required: true},
				},
				Action: func(c *cli.Context) error {
					return svcs.queue.Move(c.Context, c.Int("from"), c.Int("to"))
				},
			},
			{
				Name:  "invert",
				Usage: "reverse the queue",
				Action: func(c *cli.Context) error {
					return svcs.queue.Invert(c.Context)
				},
			},
			{
				Name:  "cancel-all",
				Usage: "remove every book from the queue",
				Action: func(c *cli.Context) error {
					ids, err := svcs.queue.CancelAll(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Cancelled %d books\n", len(ids))
					return nil
				},
			},
			{
				Name:  "reconcile",
				Usage: "repair queue state left behind by a crash",
				Action: func(c *cli.Context) error {
					result, err := svcs.queue.Reconcile(c.Context)
					if err != nil {
						return err
					}
					return output(c, result, func() {
						fmt.Printf("Paused: %d\nOrphaned: %d\nStale: %d\n", len(result.Paused), len(result.Orphaned), len(result.Stale))
					})
				},
			},
		},
	}
}

func cleanupCommand(svcs *services) *cli.Command {
	run := func(c *cli.Context, result *queue.CleanupResult) error {
		return output(c, result, func() {
			fmt.Printf("Deleted %d books, reset %d\n", len(result.Deleted), len(result.Reset))
			for _, w := range result.Warnings {
				fmt.Printf("warning: book %d: %s\n", w.ContentID, w.Message)
			}
		})
	}

	return &cli.Command{
		Name:  "cleanup",
		Usage: "delete every book of the library or of the queue",
		Subcommands: []*cli.Command{
			{
				Name:  "library",
				Usage: "delete every library book that isn't queued",
				Action: func(c *cli.Context) error {
					result, err := svcs.queue.DeleteAllLibraryBooks(c.Context)
					if err != nil {
						return err
					}
					return run(c, result)
				},
			},
			{
				Name:  "queue",
				Usage: "delete every queued book",
				Action: func(c *cli.Context) error {
					result, err := svcs.queue.DeleteAllQueuedBooks(c.Context)
					if err != nil {
						return err
					}
					return run(c, result)
				},
			},
		},
	}
}

func attributesCommand(svcs *services) *cli.Command {
	return &cli.Command{
		Name:  "attributes",
		Usage: "maintain attribute usage counts",
		Subcommands: []*cli.Command{
			{
				Name:  "recount",
				Usage: "repair attribute usage counts",
				Action: func(c *cli.Context) error {
					n, err := svcs.attributes.Recount(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Repaired %d attributes\n", n)
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "delete attributes no book uses",
				Action: func(c *cli.Context) error {
					n, err := svcs.attributes.CleanupOrphaned(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Deleted %d attributes\n", n)
					return nil
				},
			},
		},
	}
}

func output(c *cli.Context, v any, human func()) error {
	if !c.Bool("json") {
		human()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
