package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cms-go/internal/cms"
)

// parseAssignments turns "key=value" arguments into a map.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage events (groupings of gallery images)",
}

var eventAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		date, _ := cmd.Flags().GetString("date")

		in := cms.EventInput{Name: args[0], Description: description}
		if date != "" {
			d, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			in.Date = &d
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var ev *cms.Event
		err = a.Track(cmd.Context(), "CreateEvent", args[0], func() error {
			var err error
			ev, err = a.Service().CreateEvent(cmd.Context(), in)
			return err
		})
		if err := report("Create event", err, nil); err != nil {
			return err
		}
		fmt.Printf("Event ID: %s\n", ev.ID)
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.Service().ListEvents(cmd.Context())
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, ev := range events {
			date := "          "
			if ev.Date != nil {
				date = ev.Date.Format(time.DateOnly)
			}
			fmt.Printf("%s  %s  %s\n", ev.ID, date, ev.Name)
		}
		return nil
	},
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an event and every image it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ok := confirmed(fmt.Sprintf("Delete event %s and all of its images?", args[0]))

		var rep *cms.CascadeReport
		err = a.Track(cmd.Context(), "DeleteEvent", args[0], func() error {
			var err error
			rep, err = a.Service().DeleteGrouping(cmd.Context(), args[0], ok)
			return err
		})
		var orphans []cms.OrphanedBlob
		if rep != nil {
			orphans = rep.Orphans
		}
		if err := report("Delete event", err, orphans); err != nil {
			return err
		}
		fmt.Printf("Removed %d image(s)\n", rep.AssetsRemoved)
		return nil
	},
}

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage uploaded files (gallery, slides, reports, team)",
}

func openUpload(path string) (cms.Upload, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return cms.Upload{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return cms.Upload{}, nil, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, 0); err != nil {
			f.Close()
			return cms.Upload{}, nil, err
		}
	}
	if ct, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = ct
	}

	return cms.Upload{
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

var assetAddCmd = &cobra.Command{
	Use:   "add KIND FILE...",
	Short: "Upload one or more files",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := cms.ParseAssetKind(args[0])
		if err != nil {
			return report("Upload", err, nil)
		}
		eventID, _ := cmd.Flags().GetString("event")
		var title cms.Title
		title.EN, _ = cmd.Flags().GetString("title")
		title.MR, _ = cmd.Flags().GetString("title-mr")
		title.HI, _ = cmd.Flags().GetString("title-hi")

		var uploads []cms.Upload
		for _, path := range args[1:] {
			u, f, err := openUpload(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()
			u.EventID = eventID
			u.Title = title
			uploads = append(uploads, u)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(uploads) == 1 {
			var asset *cms.Asset
			err = a.Track(cmd.Context(), "CreateAsset", string(kind)+" "+uploads[0].FileName, func() error {
				var err error
				asset, err = a.Service().CreateAsset(cmd.Context(), kind, uploads[0])
				return err
			})
			if err := report("Upload", err, nil); err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", asset.ID, asset.URL)
			return nil
		}

		var res *cms.BatchResult
		_ = a.Track(cmd.Context(), "CreateAssets", fmt.Sprintf("%s %d files", kind, len(uploads)), func() error {
			res = a.Service().CreateAssets(cmd.Context(), kind, uploads)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d uploads failed", len(res.Failed), len(uploads))
			}
			return nil
		})
		for _, asset := range res.Created {
			fmt.Printf("%s  %s\n", asset.ID, asset.URL)
		}
		for _, f := range res.Failed {
			fmt.Fprintf(os.Stderr, "%s: %s\n", f.FileName, cms.Describe("Upload", f.Err, nil).Message)
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d of %d uploads failed", len(res.Failed), len(uploads))
		}
		return nil
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list KIND",
	Short: "List assets of a kind, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := cms.ParseAssetKind(args[0])
		if err != nil {
			return err
		}
		eventID, _ := cmd.Flags().GetString("event")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		assets, err := a.Service().ListAssets(cmd.Context(), kind, eventID)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			fmt.Println("No assets.")
			return nil
		}
		for _, as := range assets {
			fmt.Printf("%s  %s  %8d  %-30s  %s\n",
				as.ID,
				as.UploadedAt.Format("2006-01-02 15:04"),
				as.FileSize,
				as.FileName,
				as.Title.EN,
			)
		}
		return nil
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete KIND ID",
	Short: "Delete an asset and its stored file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := cms.ParseAssetKind(args[0])
		if err != nil {
			return report("Delete", err, nil)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ok := confirmed(fmt.Sprintf("Delete %s %s?", kind, args[1]))
		var orphans []cms.OrphanedBlob
		err = a.Track(cmd.Context(), "DeleteAsset", string(kind)+" "+args[1], func() error {
			var err error
			orphans, err = a.Service().DeleteAsset(cmd.Context(), kind, args[1], ok)
			return err
		})
		return report("Delete", err, orphans)
	},
}

// content command
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage freeform content records",
}

func contentTable(name string) (cms.Table, error) {
	t, err := cms.ParseTable(name)
	if err != nil {
		return "", err
	}
	if !t.IsContent() {
		return "", fmt.Errorf("%s is not a content table", name)
	}
	return t, nil
}

var contentListCmd = &cobra.Command{
	Use:   "list TABLE",
	Short: "List records in display order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := contentTable(args[0])
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Service().ListContent(cmd.Context(), table, !all)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No records.")
			return nil
		}
		for _, r := range recs {
			state := "active"
			if !r.IsActive {
				state = "hidden"
			}
			fields, _ := json.Marshal(r.Fields)
			fmt.Printf("%s  r%d c%d #%d  %-6s  %s\n", r.ID, r.RowPosition, r.ColumnNumber, r.DisplayOrder, state, fields)
		}
		return nil
	},
}

var contentSaveCmd = &cobra.Command{
	Use:   "save TABLE FIELD=VALUE...",
	Short: "Create a record, or replace one with --id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := contentTable(args[0])
		if err != nil {
			return err
		}
		assignments, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("id")
		inactive, _ := cmd.Flags().GetBool("inactive")
		row, _ := cmd.Flags().GetInt("row")
		column, _ := cmd.Flags().GetInt("column")

		fields := make(map[string]any, len(assignments))
		for k, v := range assignments {
			fields[k] = v
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var rec *cms.ContentRecord
		err = a.Track(cmd.Context(), "SaveContent", string(table)+" "+id, func() error {
			var err error
			rec, err = a.Service().SaveContent(cmd.Context(), table, cms.ContentInput{
				ID:           id,
				Fields:       fields,
				IsActive:     !inactive,
				RowPosition:  row,
				ColumnNumber: column,
			})
			return err
		})
		if err := report("Save", err, nil); err != nil {
			return err
		}
		fmt.Printf("Record ID: %s\n", rec.ID)
		return nil
	},
}

var contentMoveCmd = &cobra.Command{
	Use:   "move TABLE ID [up|down]",
	Short: "Move a record within its row, or to another row with --row",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := contentTable(args[0])
		if err != nil {
			return err
		}
		id := args[1]

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("row") {
			row, _ := cmd.Flags().GetInt("row")
			err = a.Track(cmd.Context(), "MoveContentToRow", fmt.Sprintf("%s %s row %d", table, id, row), func() error {
				return a.Service().MoveContentToRow(cmd.Context(), table, id, row)
			})
			return report("Move", err, nil)
		}

		if len(args) != 3 {
			return fmt.Errorf("give a direction (up or down) or --row")
		}
		dir, err := cms.ParseDirection(args[2])
		if err != nil {
			return report("Move", err, nil)
		}
		err = a.Track(cmd.Context(), "MoveContent", fmt.Sprintf("%s %s %s", table, id, args[2]), func() error {
			return a.Service().MoveContent(cmd.Context(), table, id, dir)
		})
		return report("Move", err, nil)
	},
}

func contentActiveCmd(use string, active bool) *cobra.Command {
	short := "Show a record on the public site"
	if !active {
		short = "Hide a record from the public site"
	}
	return &cobra.Command{
		Use:   use + " TABLE ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := contentTable(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Track(cmd.Context(), "SetContentActive", fmt.Sprintf("%s %s %t", table, args[1], active), func() error {
				return a.Service().SetContentActive(cmd.Context(), table, args[1], active)
			})
			return report("Update", err, nil)
		},
	}
}

var contentDeleteCmd = &cobra.Command{
	Use:   "delete TABLE ID",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := contentTable(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ok := confirmed(fmt.Sprintf("Delete %s record %s?", table, args[1]))
		err = a.Track(cmd.Context(), "DeleteContent", string(table)+" "+args[1], func() error {
			return a.Service().DeleteContent(cmd.Context(), table, args[1], ok)
		})
		return report("Delete", err, nil)
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Manage statistical series",
}

var statsSeriesCmd = &cobra.Command{
	Use:   "series",
	Short: "List the series and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, s := range cms.Series() {
			schema, err := cms.ParseSeries(string(s))
			if err != nil {
				return err
			}
			fmt.Printf("%s  (%s, key %s)\n", s, schema.Title, schema.KeyField)
			for _, f := range schema.Fields {
				required := ""
				if f.Required {
					required = " *"
				}
				fmt.Printf("    %-28s %s%s\n", f.Name, f.Label, required)
			}
		}
		return nil
	},
}

var statsListCmd = &cobra.Command{
	Use:   "list SERIES",
	Short: "List the rows of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := cms.ParseSeries(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Service().ListStatRows(cmd.Context(), schema)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No rows.")
			return nil
		}
		for _, row := range rows {
			parts := make([]string, 0, len(schema.Fields))
			for _, f := range schema.Fields {
				if v, ok := row.Values[f.Name]; ok {
					parts = append(parts, f.Name+"="+cms.FormatValue(v))
				}
			}
			fmt.Printf("%s  %s\n", schema.KeyOf(row), strings.Join(parts, " "))
		}
		return nil
	},
}

var statsSetCmd = &cobra.Command{
	Use:   "set SERIES FIELD=VALUE...",
	Short: "Insert or update a row",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := cms.ParseSeries(args[0])
		if err != nil {
			return err
		}
		input, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("id")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var row *cms.StatRow
		err = a.Track(cmd.Context(), "SaveStatRow", string(schema.Series)+" "+id, func() error {
			var err error
			row, err = a.Service().SaveStatRow(cmd.Context(), schema, id, input)
			return err
		})
		if err := report("Save", err, nil); err != nil {
			return err
		}
		fmt.Printf("Key: %s\n", schema.KeyOf(row))
		return nil
	},
}

var statsDeleteCmd = &cobra.Command{
	Use:   "delete SERIES KEY",
	Short: "Delete a row",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := cms.ParseSeries(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ok := confirmed(fmt.Sprintf("Delete %s row %s?", schema.Title, args[1]))
		err = a.Track(cmd.Context(), "DeleteStatRow", string(schema.Series)+" "+args[1], func() error {
			return a.Service().DeleteStatRow(cmd.Context(), schema, args[1], ok)
		})
		return report("Delete", err, nil)
	},
}

var statsExportCmd = &cobra.Command{
	Use:   "export SERIES",
	Short: "Write a series as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := cms.ParseSeries(args[0])
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		w := os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		return a.Service().ExportStatsCSV(cmd.Context(), schema, w)
	},
}

// counter command
var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Visitor counter",
}

var counterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the visitor count",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().CurrentCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Visitors:     %d\n", c.VisitorCount)
		fmt.Printf("Last updated: %s\n", c.LastUpdated.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var counterResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the visitor count to zero",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ok := confirmed("Reset the visitor count to zero?")
		err = a.Track(cmd.Context(), "ResetCounter", "", func() error {
			return a.Service().ResetCounter(cmd.Context(), ok)
		})
		return report("Reset counter", err, nil)
	},
}

var counterTouchCmd = &cobra.Command{
	Use:   "touch",
	Short: "Set the site's last-updated date to now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Track(cmd.Context(), "TouchLastUpdated", "", func() error {
			return a.Service().TouchLastUpdated(cmd.Context())
		})
		return report("Update", err, nil)
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare stored files with asset records",
	RunE: func(cmd *cobra.Command, args []string) error {
		sweep, _ := cmd.Flags().GetBool("sweep")
		grace, _ := cmd.Flags().GetDuration("grace")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var rep *cms.VerifyReport
		if sweep {
			ok := confirmed("Delete orphaned files older than " + grace.String() + "?")
			err = a.Track(cmd.Context(), "Sweep", grace.String(), func() error {
				var err error
				rep, err = a.Service().Sweep(cmd.Context(), grace, ok)
				return err
			})
			if err := report("Sweep", err, nil); err != nil {
				return err
			}
		} else {
			rep, err = a.Service().Verify(cmd.Context())
			if err != nil {
				return err
			}
		}

		for _, o := range rep.Orphans {
			fmt.Printf("orphan   %s  %s\n", o.ModTime.Format("2006-01-02 15:04"), o.Key)
		}
		for _, b := range rep.Broken {
			fmt.Printf("missing  %s  %s (%s)\n", b.Kind, b.Path, b.ID)
		}
		sort.Strings(rep.Swept)
		for _, s := range rep.Swept {
			fmt.Printf("swept    %s\n", s)
		}
		fmt.Printf("%d orphan(s), %d missing file(s), %d swept\n", len(rep.Orphans), len(rep.Broken), len(rep.Swept))
		return nil
	},
}

func init() {
	eventCmd.AddCommand(eventAddCmd)
	eventAddCmd.Flags().StringP("description", "d", "", "Event description")
	eventAddCmd.Flags().String("date", "", "Event date (YYYY-MM-DD)")
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventDeleteCmd)

	assetCmd.AddCommand(assetAddCmd)
	assetAddCmd.Flags().String("event", "", "Owning event ID (gallery only)")
	assetAddCmd.Flags().StringP("title", "t", "", "Title (English)")
	assetAddCmd.Flags().String("title-mr", "", "Title (Marathi)")
	assetAddCmd.Flags().String("title-hi", "", "Title (Hindi)")
	assetCmd.AddCommand(assetListCmd)
	assetListCmd.Flags().String("event", "", "Only assets of this event")
	assetCmd.AddCommand(assetDeleteCmd)

	contentCmd.AddCommand(contentListCmd)
	contentListCmd.Flags().BoolP("all", "a", false, "Include hidden records")
	contentCmd.AddCommand(contentSaveCmd)
	contentSaveCmd.Flags().String("id", "", "Replace the record with this ID")
	contentSaveCmd.Flags().Bool("inactive", false, "Save the record hidden")
	contentSaveCmd.Flags().Int("row", 0, "Row position")
	contentSaveCmd.Flags().Int("column", 0, "Column number")
	contentCmd.AddCommand(contentMoveCmd)
	contentMoveCmd.Flags().Int("row", 0, "Move to the end of this row")
	contentCmd.AddCommand(contentActiveCmd("show", true))
	contentCmd.AddCommand(contentActiveCmd("hide", false))
	contentCmd.AddCommand(contentDeleteCmd)

	statsCmd.AddCommand(statsSeriesCmd)
	statsCmd.AddCommand(statsListCmd)
	statsCmd.AddCommand(statsSetCmd)
	statsSetCmd.Flags().String("id", "", "Row ID (series keyed by id only)")
	statsCmd.AddCommand(statsDeleteCmd)
	statsCmd.AddCommand(statsExportCmd)
	statsExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	counterCmd.AddCommand(counterShowCmd)
	counterCmd.AddCommand(counterResetCmd)
	counterCmd.AddCommand(counterTouchCmd)

	verifyCmd.Flags().Bool("sweep", false, "Delete orphaned files")
	verifyCmd.Flags().Duration("grace", time.Hour, "Keep orphans younger than this")

	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(counterCmd)
	rootCmd.AddCommand(verifyCmd)
}
