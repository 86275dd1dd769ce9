package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	monitop "github.com/jondoveston/monitop/internal"
	"github.com/jondoveston/monitop/internal/charts"
	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/devserver"
	"github.com/jondoveston/monitop/internal/logging"
	"github.com/jondoveston/monitop/internal/render"
	"github.com/jondoveston/monitop/internal/schedule"
	"github.com/jondoveston/monitop/internal/snapshot"
	"github.com/jondoveston/monitop/internal/telemetry"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [service-url]",
	Short: "Print the service info and current metrics once",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshot,
}

var goroutinesCmd = &cobra.Command{
	Use:   "goroutines [service-url]",
	Short: "Print the goroutine count and stacks",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGoroutines,
}

var historyCmd = &cobra.Command{
	Use:   "history [service-url]",
	Short: "Print a metric group's history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var reportCmd = &cobra.Command{
	Use:   "report [service-url]",
	Short: "Print a report for a topic and timeframe",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

var functionsCmd = &cobra.Command{
	Use:   "functions [service-url] [function]",
	Short: "List traced functions, or show one function's details",
	Long: `List traced functions, or show one function's details.

When the url comes from --url or MONITOP_URL the only argument is the function:
  monitop functions --url http://localhost:8080 main.handler`,
	Args:  cobra.MaximumNArgs(2),
	RunE:  runFunctions,
}

var watchCmd = &cobra.Command{
	Use:   "watch [service-url]",
	Short: "Poll on the refresh interval and log every snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Serve a monitoring API for this process, for trying monitop out",
	Args:  cobra.NoArgs,
	RunE:  runDevserver,
}

func init() {
	snapshotCmd.Flags().String("format", "text", "Output format: text, json or prom")
	goroutinesCmd.Flags().Bool("stacks", false, "Print every goroutine stack")
	historyCmd.Flags().String("group", charts.HistoryGroups[0].Name, "Metric group: "+groupNames())
	historyCmd.Flags().String("range", "1h", "Time range: "+strings.Join(client.HistoryRanges, ", "))
	reportCmd.Flags().String("topic", render.ReportTopics[0], "Report topic: "+strings.Join(render.ReportTopics, ", "))
	reportCmd.Flags().String("frame", "1h", "Timeframe: "+strings.Join(client.ReportFrames, ", "))
	functionsCmd.Flags().String("type", monitop.FunctionReportTypes[0], "Report type: "+strings.Join(monitop.FunctionReportTypes, ", "))
	devserverCmd.Flags().String("addr", ":8080", "Listen address")
	devserverCmd.Flags().String("name", "monitop-devserver", "Service name to report")
	devserverCmd.Flags().String("data-dir", "", "Keep history on disk in this directory instead of in memory")
	devserverCmd.Flags().Duration("sample-interval", devserver.DefaultSampleInterval, "How often history is recorded")
	devserverCmd.Flags().Float64("rate-limit", 0, "Requests per second per client, 0 for no limit")
}

func groupNames() string {
	names := []string{charts.GoroutineGroup.Name}
	for _, g := range charts.HistoryGroups {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// session is what the one-shot commands share. They log to stderr.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *client.Client
	logger logr.Logger
	flush  func()
}

func newSession(cmd *cobra.Command, args []string) (*session, error) {
	logger, flush, err := logging.New(viper.GetString("log_level"), viper.GetString("log_file"))
	if err != nil {
		return nil, err
	}
	rawURL, err := serviceURL(args)
	if err != nil {
		flush()
		return nil, err
	}
	ctx, cancel := signalContext(cmd.Context())
	c, err := newClient(ctx, rawURL, logger, nil)
	if err != nil {
		cancel()
		flush()
		return nil, err
	}
	return &session{ctx: ctx, cancel: cancel, client: c, logger: logger, flush: flush}, nil
}

func (s *session) Close() {
	s.cancel()
	s.flush()
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c := s.ctx, s.client

	format, _ := cmd.Flags().GetString("format")
	unit := viper.GetString("unit")

	var (
		info *client.ServiceInfo
		snap *snapshot.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info, err = c.ServiceInfo(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap, err = c.Metrics(gctx, unit)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"service_info": info,
			"unit":         snap.Unit,
			"fetched_at":   snap.FetchedAt,
			"metrics":      snap.Categories,
		})
	case "prom":
		return telemetry.WriteSnapshot(out, snap, map[string]string{"service": info.ServiceName})
	case "text":
		return writeSnapshotText(out, info, snap)
	default:
		return fmt.Errorf("unknown format %q, want text, json or prom", format)
	}
}

func writeSnapshotText(w io.Writer, info *client.ServiceInfo, snap *snapshot.Snapshot) error {
	env := render.Env{Location: time.Local, Unit: snap.Unit}

	var rows [][]string
	for _, cell := range render.Render(render.ServiceInfoValues(info), render.ServiceInfoFields, env) {
		rows = append(rows, []string{cell.Label, cell.Value})
	}
	for _, fields := range [][]render.Field{render.DashboardFields, render.RuntimeFields} {
		for _, cell := range render.Render(snap, fields, env) {
			rows = append(rows, []string{cell.Label, cell.Value})
		}
	}
	health := render.HealthOf(snap)
	rows = append(rows, []string{"Overall Health", health.Label()}, []string{"Status", health.Status()})
	if health.HasPercent {
		rows = append(rows, []string{"Health", health.Band.Tag})
	}

	_, err := fmt.Fprintln(w, monitop.NewWrapTable().Headers("METRIC", "VALUE").Rows(rows...).Render())
	return err
}

func runGoroutines(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c := s.ctx, s.client

	stats, err := c.GoRoutines(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Goroutines: %d\n", stats.NumberOfGoroutines)
	if stacks, _ := cmd.Flags().GetBool("stacks"); stacks {
		for _, stack := range stats.StackView {
			fmt.Fprintf(out, "\n%s\n", stack)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c := s.ctx, s.client

	name, _ := cmd.Flags().GetString("group")
	rng, _ := cmd.Flags().GetString("range")
	group, ok := charts.FindGroup(name)
	if !ok {
		return fmt.Errorf("unknown group %q, want one of %s", name, groupNames())
	}
	req, err := client.NewHistoryRequest(group.Fields, rng, time.Now())
	if err != nil {
		return err
	}
	points, err := c.ServiceMetrics(ctx, req)
	if err != nil {
		return err
	}

	format := charts.AxisFormatter(group.Name)
	headers := []string{"TIME"}
	for _, f := range group.Fields {
		headers = append(headers, render.ReportHeader(f))
	}
	var rows [][]string
	for _, p := range points {
		row := []string{p.Time.Local().Format(time.DateTime)}
		for _, f := range group.Fields {
			v, ok := p.Value[f]
			if !ok {
				row = append(row, render.NotAvailable)
				continue
			}
			row = append(row, format(v))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s history in the last %s\n", group.Name, rng)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), monitop.NewWrapTable().Headers(headers...).Rows(rows...).Render())
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c := s.ctx, s.client

	topic, _ := cmd.Flags().GetString("topic")
	frame, _ := cmd.Flags().GetString("frame")
	req, err := client.NewReportRequest(topic, frame, time.Now())
	if err != nil {
		return err
	}
	rows, err := c.Reports(ctx, req)
	if err != nil {
		return err
	}

	table := render.ReportTable(rows)
	if len(table.Rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s data in the last %s\n", topic, frame)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), monitop.NewWrapTable().Headers(table.Headers...).Rows(table.Rows...).Render())
	return nil
}

// functionArgs splits the arguments of functions into the url arguments and
// the function name. With the url already configured a lone argument is the name.
func functionArgs(args []string) ([]string, string) {
	switch {
	case len(args) == 2:
		return args[:1], args[1]
	case len(args) == 1 && viper.GetString("url") != "":
		return nil, args[0]
	}
	return args, ""
}

func runFunctions(cmd *cobra.Command, args []string) error {
	args, name := functionArgs(args)
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c := s.ctx, s.client

	out := cmd.OutOrStdout()
	if name != "" {
		reportType, _ := cmd.Flags().GetString("type")
		details, err := c.FunctionDetails(ctx, name, reportType)
		if err != nil {
			return err
		}
		if details.CodeTrace != "" {
			fmt.Fprintf(out, "Code trace:\n%s\n", details.CodeTrace)
		}
		if details.CoreProfile.CPUProfile != "" {
			fmt.Fprintf(out, "CPU profile:\n%s\n", details.CoreProfile.CPUProfile)
		}
		if details.CoreProfile.MemProfile != "" {
			fmt.Fprintf(out, "Memory profile:\n%s\n", details.CoreProfile.MemProfile)
		}
		return nil
	}

	functions, err := c.Functions(ctx)
	if err != nil {
		return err
	}
	var rows [][]string
	for _, fn := range functions.Names() {
		rows = append(rows, []string{fn, functions[fn].LastRanAt})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No traced functions")
		return nil
	}
	fmt.Fprintln(out, monitop.NewWrapTable().Headers("FUNCTION", "LAST RAN AT").Rows(rows...).Render())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, c, logger := s.ctx, s.client, s.logger

	store, p, err := loadPrefs(logger)
	if err != nil {
		return err
	}
	logger = logger.WithName("watch")

	// another monitop changing the interval restarts our countdown
	var intervals chan int
	if changes, err := store.Watch(ctx); err != nil {
		logger.Error(err, "not watching prefs")
	} else {
		intervals = make(chan int)
		go func() {
			defer close(intervals)
			for changed := range changes {
				select {
				case intervals <- changed.RefreshInterval:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	ticker := time.NewTicker(monitop.TickDuration())
	defer ticker.Stop()

	cd := schedule.NewCountdown(p.RefreshInterval)
	err = schedule.Loop(ctx, ticker.C, intervals, cd, func() {
		snap, err := c.Metrics(ctx, p.SelectedUnit)
		if err != nil {
			if !client.IsCanceled(err) {
				logger.Error(err, "poll failed")
			}
			return
		}
		kv := []any{"unit", snap.Unit}
		for _, cell := range render.Render(snap, render.DashboardFields, render.Env{Location: time.Local, Unit: snap.Unit}) {
			kv = append(kv, cell.ID, cell.Value)
		}
		kv = append(kv, "health", render.HealthOf(snap).Label(), "next", cd.Remaining().String())
		logger.Info("snapshot", kv...)
	})
	if client.IsCanceled(err) {
		return nil
	}
	return err
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	logger, flush, err := logging.New(viper.GetString("log_level"), viper.GetString("log_file"))
	if err != nil {
		return err
	}
	defer flush()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	addr, _ := cmd.Flags().GetString("addr")
	name, _ := cmd.Flags().GetString("name")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	interval, _ := cmd.Flags().GetDuration("sample-interval")
	limit, _ := cmd.Flags().GetFloat64("rate-limit")

	history, err := devserver.NewHistory(dataDir, devserver.DefaultRetention)
	if err != nil {
		return err
	}
	srv, err := devserver.New(devserver.Options{
		ServiceName:    name,
		History:        history,
		SampleInterval: interval,
		RateLimit:      limit,
		Logger:         logger,
	})
	if err != nil {
		history.Close()
		return err
	}
	return srv.Run(ctx, addr)
}
