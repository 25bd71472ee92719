package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

func newLessonCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Manage the lessons fed to the tick analysis prompt",
	}
	cmd.AddCommand(newLessonAddCmd(opts), newLessonListCmd(opts))
	return cmd
}

func newLessonAddCmd(opts *rootOptions) *cobra.Command {
	var l models.Lesson
	cmd := &cobra.Command{
		Use:   "add <summary>",
		Short: "Record a lesson for a VIX bucket and time-of-day bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l.Summary = strings.TrimSpace(strings.Join(args, " "))
			if l.Summary == "" {
				return errors.New("lesson summary is empty")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.AddLesson(cmd.Context(), &l); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lesson %d recorded (%s/%s)\n", l.ID, l.VIXBucket, l.TimeBucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&l.VIXBucket, "vix", "", "VIX bucket (low, normal, elevated, extreme)")
	cmd.Flags().StringVar(&l.TimeBucket, "time", "", "time-of-day bucket (open, midday, close)")
	cmd.Flags().StringVar(&l.Outcome, "outcome", "", "trade outcome, e.g. win or loss")
	_ = cmd.MarkFlagRequired("vix")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newLessonListCmd(opts *rootOptions) *cobra.Command {
	var vix, bucket string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lessons relevant to a VIX bucket and time-of-day bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			lessons, err := db.Lessons(cmd.Context(), vix, bucket, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(lessons) == 0 {
				fmt.Fprintln(out, "no lessons")
				return nil
			}
			for _, l := range lessons {
				fmt.Fprintf(out, "%d\t%s/%s\t%s\t%s\n", l.ID, l.VIXBucket, l.TimeBucket, nonEmpty(l.Outcome, "-"), l.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vix, "vix", "", "VIX bucket")
	cmd.Flags().StringVar(&bucket, "time", "", "time-of-day bucket")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum lessons to show")
	return cmd
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
