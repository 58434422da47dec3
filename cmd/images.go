package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imgurfetch/internal"
	"imgurfetch/utils"
)

var (
	listPage    int
	listAll     bool
	uploadTitle string
	uploadDesc  string
	getOutput   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the signed-in account's images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSIZE\tVIEWS\tUPLOADED")

		page := listPage
		total := 0
		for {
			records, err := client.ListImages(ctx, page)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					rec.ID, rec.DisplayName(), humanize.Bytes(uint64(rec.Size)), rec.Views, uploadedAt(rec))
			}
			total += len(records)
			internal.LogDebug("page %d: %d images", page, len(records))

			if !listAll || len(records) == 0 {
				break
			}
			page++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		say("%d images\n", total)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print how many images the signed-in account has",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		count, err := client.ImageCount(ctx)
		if err != nil {
			return err
		}
		fmt.Println(humanize.Comma(int64(count)))
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <FILE>",
	Short: "Upload an image to the signed-in account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		name := filepath.Base(args[0])
		payload := internal.NewUploadPayload(raw, uploadTitle, name, uploadDesc)
		say("Uploading %s (%s)\n", name, humanize.IBytes(uint64(len(raw))))

		tracker := utils.NewProgressTracker("upload", int64(len(payload.Image)), config.QuietMode)
		result, err := client.Upload(ctx, payload, tracker.UpdateFraction)
		summary := tracker.Finish()
		if err != nil {
			return err
		}

		say("%s\n", summary)
		fmt.Printf("ID:          %s\n", result.ID)
		fmt.Printf("Link:        %s\n", result.Link)
		if result.DeleteHash != "" {
			fmt.Printf("Delete hash: %s\n", result.DeleteHash)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <ID|URL>",
	Short: "Delete an image from the signed-in account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		id, err := utils.ImageIDFromURL(args[0])
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		if err := client.Delete(ctx, id); err != nil {
			return err
		}
		say("Deleted %s\n", id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <ID|URL>",
	Short: "Download a full-size image",
	Long: `Download a full-size image by id, page address or direct link and save
it to disk. Press Ctrl+C to cancel; nothing is left behind.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		record, err := recordFromArg(args[0])
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		tracker := utils.NewProgressTracker(record.ID, 0, config.QuietMode)
		task, err := client.DownloadImage(record, nil, tracker.UpdateFraction)
		if err != nil {
			return err
		}

		result, err := task.Wait(ctx)
		if err != nil {
			task.Cancel()
			tracker.Finish()
			return fmt.Errorf("download cancelled: %w", err)
		}
		tracker.Finish()
		if result.Err != nil {
			return result.Err
		}
		if result.Image == nil {
			return internal.NewImageUnavailableError(record.ID)
		}

		out := getOutput
		if out == "" {
			out = utils.SafeFilename(path.Base(record.Link), record.ID+".png")
		}
		if err := utils.NewFileOperations().WriteFileAtomic(out, result.Bytes, 0o644); err != nil {
			return err
		}

		b := result.Image.Bounds()
		say("Saved %s (%dx%d, %s)\n", out, b.Dx(), b.Dy(), humanize.IBytes(uint64(len(result.Bytes))))
		return nil
	},
}

// recordFromArg turns an id, page address or direct link into a record
// with a fetchable link
func recordFromArg(arg string) (internal.ResourceRecord, error) {
	id, err := utils.ImageIDFromURL(arg)
	if err != nil {
		return internal.ResourceRecord{}, err
	}

	link := fmt.Sprintf("https://i.imgur.com/%s.png", id)
	if strings.HasPrefix(arg, "https://i.imgur.com/") && path.Ext(arg) != "" {
		link = arg
	}
	return internal.ResourceRecord{ID: id, Link: link, State: internal.StateNew}, nil
}

func uploadedAt(rec internal.ResourceRecord) string {
	if rec.Datetime == nil {
		return "-"
	}
	return humanize.RelTime(*rec.Datetime, time.Now(), "ago", "from now")
}

func init() {
	listCmd.Flags().IntVarP(&listPage, "page", "p", 0, "Page to list, starting at 0")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Keep listing pages until one comes back empty")

	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "Image title")
	uploadCmd.Flags().StringVar(&uploadDesc, "description", "", "Image description")

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Custom output file path")
}
