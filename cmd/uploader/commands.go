package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gelecek/folder-uploader/internal/lists"
	"github.com/gelecek/folder-uploader/internal/log"
	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/observability"
	"github.com/gelecek/folder-uploader/internal/parallel"
	"github.com/gelecek/folder-uploader/internal/service"
	"github.com/gelecek/folder-uploader/internal/settings"
	"github.com/gelecek/folder-uploader/internal/tui"
	"github.com/gelecek/folder-uploader/internal/walk"
)

// job flags shared by run, watch and settings save
var (
	flagLogin           string
	flagPassword        string
	flagList            string
	flagOrigin          string
	flagDescriptor      string
	flagAvatar          string
	flagMultiFacePolicy int
	flagWarped          bool
	flagNameAsUserData  bool

	flagQueue        bool
	flagLogFile      string
	flagShowPassword bool
)

func addJobFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flagLogin, "login", "", "LUNA login")
	f.StringVar(&flagPassword, "password", "", "LUNA password")
	f.StringVar(&flagList, "list", "", "target list id or its user data")
	f.StringVar(&flagOrigin, "origin", "", "LUNA API origin, e.g. http://127.0.0.1:5000")
	f.StringVar(&flagDescriptor, "descriptor", "", "descriptor version")
	f.StringVar(&flagAvatar, "avatar", "", "avatar mode")
	f.IntVar(&flagMultiFacePolicy, "multi-face-policy", 0, "multi face policy")
	f.BoolVar(&flagWarped, "warped", false, "images are already warped")
	f.BoolVar(&flagNameAsUserData, "name-as-userdata", false, "use file name as face user data")
}

var runCmd = &cobra.Command{
	Use:   "run [folders...]",
	Short: "run uploads all folders concurrently and waits for them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch [folders...]",
	Short: "watch uploads folders in an interactive terminal view",
	RunE:  doWatch,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "settings manages the stored upload defaults",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "show prints the stored upload defaults",
	RunE:  doSettingsShow,
}

var settingsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "save stores the given flags as upload defaults",
	RunE:  doSettingsSave,
}

var checkCmd = &cobra.Command{
	Use:   "check [folders...]",
	Short: "check counts the images in folders without uploading them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doCheck,
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "lists prints the lists available for upload",
	RunE:  doLists,
}

func cmdContext(cmd *cobra.Command, name string) context.Context {
	attrs := slog.Group("uploader",
		slog.String("cmd", name),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd, "run"), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := jobDefaults(ctx, cmd)
	metrics, handler, err := newMetrics(ctx)
	if err != nil {
		return err
	}
	defer shutdownMetrics(ctx, metrics)

	supervisor, err := service.SupervisorFromConfig(ctx, config, defaults, service.NewWriterObserver(os.Stdout), metrics)
	if err != nil {
		return err
	}
	folders := absPaths(ctx, args)
	warnEmpty(ctx, folders)
	for _, folder := range folders {
		supervisor.Add(defaults.JobConfig(folder))
	}
	supervisor.SetOneshot(true)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return supervisor.Do(gctx)
	})
	serveMetrics(gctx, g, handler)
	if err := g.Wait(); err != nil {
		return err
	}

	stats := supervisor.Registry().Stats()
	failed := stats.Unsuccessful() + len(args) - stats.Spawned
	slog.InfoContext(ctx, "uploads done", "total", len(args), "succeeded", stats.Succeeded, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d upload job(s) did not succeed", failed, len(args))
	}
	return nil
}

func doWatch(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd, "watch")

	// the terminal view owns stderr
	logPath := flagLogFile
	if logPath == "" {
		logPath = filepath.Join(userConfigPath, "watch.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() {
		_ = logFile.Close()
	}()
	slog.SetDefault(log.New(logFile, config.Service.Verbose))

	defaults := jobDefaults(ctx, cmd)
	metrics, handler, err := newMetrics(ctx)
	if err != nil {
		return err
	}
	defer shutdownMetrics(ctx, metrics)

	buffer := tui.NewLogBuffer(0)
	registry, err := service.RegistryFromConfig(ctx, config, defaults, buffer, metrics)
	if err != nil {
		return err
	}
	queue := make([]model.JobConfig, 0, len(args))
	for _, folder := range absPaths(ctx, args) {
		queue = append(queue, defaults.JobConfig(folder))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, registry, buffer, tui.Config{
			Interval:  config.Poll.Interval.Std(),
			Queue:     queue,
			Autostart: !flagQueue,
			Grace:     service.DefaultShutdownGrace,
		})
	})
	serveMetrics(gctx, g, handler)
	return g.Wait()
}

func doCheck(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd, "check")
	folders := absPaths(ctx, args)
	var bad int
	for i, r := range surveyFolders(ctx, folders) {
		var line string
		switch {
		case r.Err != nil:
			bad++
			line = fmt.Sprintf("%s: %v", folders[i], r.Err)
		case r.Value.Images == 0:
			bad++
			line = fmt.Sprintf("%s: no images (%d file(s))", folders[i], r.Value.Files)
		default:
			line = fmt.Sprintf("%s: %d image(s), %d file(s), %d bytes", folders[i], r.Value.Images, r.Value.Files, r.Value.Bytes)
		}
		if r.Err == nil && r.Value.Errors > 0 {
			line += fmt.Sprintf(", %d unreadable", r.Value.Errors)
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d folder(s) have nothing to upload", bad, len(folders))
	}
	return nil
}

func surveyFolders(ctx context.Context, folders []string) []parallel.Result[walk.Survey] {
	return parallel.Map(ctx, runtime.NumCPU(), folders, walk.SurveyFolder)
}

// warnEmpty logs folders without images, the upload is started anyway
func warnEmpty(ctx context.Context, folders []string) {
	for i, r := range surveyFolders(ctx, folders) {
		if r.Err == nil && r.Value.Images == 0 {
			slog.WarnContext(ctx, "folder contains no images", "folder", folders[i], "files", r.Value.Files)
		}
	}
}

func doSettingsShow(cmd *cobra.Command, _ []string) error {
	ctx := cmdContext(cmd, "settings show")
	s := settings.NewJSONStore(config.Settings.Path).Load(ctx)
	if !flagShowPassword && s.Password != "" {
		s.Password = "***"
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func doSettingsSave(cmd *cobra.Command, _ []string) error {
	ctx := cmdContext(cmd, "settings save")
	store := settings.NewJSONStore(config.Settings.Path)
	s := applyJobFlags(cmd, store.Load(ctx))
	if err := store.Save(ctx, s); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Settings saved to %s\n", store.Path())
	return err
}

func doLists(cmd *cobra.Command, _ []string) error {
	ctx := cmdContext(cmd, "lists")
	client, err := lists.NewClient(config.Lists.URL.String(), config.Lists.Timeout.Std())
	if err != nil {
		return err
	}
	all, err := client.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "No lists found")
		return err
	}
	for _, l := range all {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), l.Label()); err != nil {
			return err
		}
	}
	return nil
}

// absPaths makes folders absolute, the upload runs inside the folder
func absPaths(ctx context.Context, folders []string) []string {
	out := make([]string, 0, len(folders))
	for _, folder := range folders {
		abs, err := filepath.Abs(folder)
		if err != nil {
			slog.WarnContext(ctx, "can't resolve folder: using as given", "folder", folder, "error", err)
			abs = folder
		}
		out = append(out, abs)
	}
	return out
}

// jobDefaults are the stored settings overridden by the command line flags
func jobDefaults(ctx context.Context, cmd *cobra.Command) model.Settings {
	s := applyJobFlags(cmd, settings.NewJSONStore(config.Settings.Path).Load(ctx))
	if cmd.Flags().Changed("list") {
		s.ListID = resolveList(ctx, flagList)
	}
	return s
}

func applyJobFlags(cmd *cobra.Command, s model.Settings) model.Settings {
	f := cmd.Flags()
	if f.Changed("login") {
		s.Username = flagLogin
	}
	if f.Changed("password") {
		s.Password = flagPassword
	}
	if f.Changed("list") {
		s.ListID = flagList
	}
	if f.Changed("origin") {
		s.Origin = flagOrigin
	}
	if f.Changed("descriptor") {
		s.Descriptor = flagDescriptor
	}
	if f.Changed("avatar") {
		s.Avatar = flagAvatar
	}
	if f.Changed("multi-face-policy") {
		s.MultiFacePolicy = flagMultiFacePolicy
	}
	if f.Changed("warped") {
		s.Warped = flagWarped
	}
	if f.Changed("name-as-userdata") {
		s.NameAsUserData = flagNameAsUserData
	}
	return s
}

// resolveList maps user data to a list id. The lookup is best effort, key
// is used as is when the lists are not available.
func resolveList(ctx context.Context, key string) string {
	if config.Lists.URL.IsZero() {
		return key
	}
	client, err := lists.NewClient(config.Lists.URL.String(), config.Lists.Timeout.Std())
	if err != nil {
		slog.WarnContext(ctx, "lists lookup disabled", "error", err)
		return key
	}
	all, err := client.Fetch(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load lists: using list as given", "list", key, "error", err)
		return key
	}
	l, err := lists.Select(all, key)
	if err != nil {
		slog.WarnContext(ctx, "list not offered by lookup: using list as given", "list", key)
		return key
	}
	slog.InfoContext(ctx, "list selected", "list", l.Label())
	return l.ListID
}

func newMetrics(ctx context.Context) (*observability.Metrics, http.Handler, error) {
	if config.Service.Metrics.IsZero() {
		return nil, nil, nil
	}
	metrics, handler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing metrics: %w", err)
	}
	return metrics, handler, nil
}

func shutdownMetrics(ctx context.Context, metrics *observability.Metrics) {
	if err := metrics.Shutdown(context.WithoutCancel(ctx)); err != nil {
		slog.WarnContext(ctx, "shutting down metrics failed", "error", err)
	}
}

// serveMetrics exposes /metrics until ctx is done
func serveMetrics(ctx context.Context, g *errgroup.Group, handler http.Handler) {
	if handler == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{
		Addr:              config.Service.Metrics.String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.InfoContext(ctx, "serving metrics", "addr", srv.Addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}
