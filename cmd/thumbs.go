package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"imgurfetch/imgur"
	"imgurfetch/internal"
	"imgurfetch/utils"
)

var (
	thumbsPage int
	thumbsOut  string
	thumbsSize int
)

var thumbsCmd = &cobra.Command{
	Use:   "thumbs",
	Short: "Fetch thumbnails for one page of the account's images",
	Long: `Fetch one page of the signed-in account's images, download a thumbnail
for each through the thumbnail coordinator and save them as PNG files.

Examples:
  imgurfetch thumbs --out ./thumbs
  imgurfetch thumbs -p 2 --size 300 -j 8 -r 1M`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("size") {
			config.ThumbnailSize = thumbsSize
		}
		if err := config.ValidateConfig(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		records, err := client.ListImages(ctx, thumbsPage)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			say("No images on page %d\n", thumbsPage)
			return nil
		}

		say("Fetching %d thumbnails into %s\n", len(records), thumbsOut)
		done, failed, err := fetchThumbnails(ctx, imgur.NewCoordinator(client.Context()), records)
		if err != nil {
			return err
		}
		say("%d saved, %d failed\n", done-failed, failed)
		if failed > 0 {
			return fmt.Errorf("%d thumbnails failed", failed)
		}
		return nil
	},
}

// thumbnailSink forwards coordinator completions to a channel
type thumbnailSink chan thumbnailOutcome

type thumbnailOutcome struct {
	record internal.ResourceRecord
	err    error
}

func (s thumbnailSink) OnThumbnailProgress(resourceID string, fraction float64) {
	internal.LogDebug("thumbnail %s: %.0f%%", resourceID, fraction*100)
}

func (s thumbnailSink) OnThumbnailComplete(record internal.ResourceRecord, err error) {
	s <- thumbnailOutcome{record: record, err: err}
}

// fetchThumbnails requests every record's thumbnail and writes each one as
// it arrives. Writes run concurrently, bounded by the configured concurrency.
func fetchThumbnails(ctx context.Context, coordinator *imgur.Coordinator, records []internal.ResourceRecord) (done, failed int, err error) {
	defer coordinator.Close()

	coordinator.Track(records...)
	sink := make(thumbnailSink, len(records))
	for _, rec := range records {
		coordinator.RequestThumbnail(rec.ID, sink)
	}

	batch := utils.NewBatchTracker(os.Stderr, "thumbnails", len(records), config.QuietMode)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)
	files := utils.NewFileOperations()

	for range records {
		var outcome thumbnailOutcome
		select {
		case outcome = <-sink:
		case <-gctx.Done():
			batch.Finish()
			if werr := g.Wait(); werr != nil {
				return 0, 0, werr
			}
			return 0, 0, gctx.Err()
		}

		if outcome.err != nil {
			internal.LogWarn("thumbnail %s: %v", outcome.record.ID, outcome.err)
			batch.Done(false)
			continue
		}

		record := outcome.record
		g.Go(func() error {
			var buf bytes.Buffer
			if err := png.Encode(&buf, record.Thumbnail); err != nil {
				batch.Done(false)
				return fmt.Errorf("encode thumbnail %s: %w", record.ID, err)
			}
			name := utils.SafeFilename(record.DisplayName(), record.ID) + "_" + record.ID + ".png"
			if err := files.WriteFileAtomic(filepath.Join(thumbsOut, name), buf.Bytes(), 0o644); err != nil {
				batch.Done(false)
				return err
			}
			batch.Done(true)
			return nil
		})
	}

	err = g.Wait()
	done, failed = batch.Finish()
	return done, failed, err
}

func init() {
	thumbsCmd.Flags().IntVarP(&thumbsPage, "page", "p", 0, "Page of images to fetch thumbnails for")
	thumbsCmd.Flags().StringVarP(&thumbsOut, "out", "o", "thumbnails", "Directory the thumbnails are written to")
	thumbsCmd.Flags().IntVar(&thumbsSize, "size", config.ThumbnailSize, "Length of the thumbnail's shorter side in pixels")
}
