package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"cityalert/internal/attachment"
	"cityalert/internal/config"
	"cityalert/internal/dashboard"
	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
	"cityalert/internal/intake"
	"cityalert/internal/llm"
	"cityalert/internal/logger"
	"cityalert/internal/mapview"

	"github.com/google/uuid"
)

func main() {
	exitFn(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	slog.SetDefault(logger.New(stderr, *cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args[1] {
	case "report":
		return handleReport(ctx, cfg, args[2:], stdin, stdout, stderr)
	case "alerts":
		return handleAlerts(ctx, cfg, args[2:], stdout, stderr)
	case "dashboard":
		return handleDashboard(ctx, cfg, args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cityalert report    [-api URL] [-provider gemini|openai|proxy|fake]")
	fmt.Fprintln(w, "  cityalert alerts    [-api URL] [-once] [-interval 30s]")
	fmt.Fprintln(w, "  cityalert dashboard -key KEY [-status S] [-set ID=STATUS] [-delete ID] [-once]")
}

func handleReport(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	api := fs.String("api", cfg.APIBaseURL, "Incident API base URL")
	provider := fs.String("provider", cfg.Chat.Provider, "chat provider")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	chatCfg := cfg.Chat
	chatCfg.Provider = strings.ToLower(strings.TrimSpace(*provider))
	chat, err := llm.New(ctx, chatCfg, *api, cfg.HTTPTimeout)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer chat.Close()

	var images intake.ImageStore = attachment.PlaceholderStore{}
	if cfg.Attachment.CanUseS3() {
		s3, err := attachment.NewS3Store(cfg.Attachment)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		images = s3
	}

	client := incidentapi.New(*api, incidentapi.WithTimeout(cfg.HTTPTimeout))
	engine := intake.New(chat, client,
		intake.WithSessionID("cli-"+uuid.NewString()),
		intake.WithImageStore(images),
	)

	printReply(stdout, engine.Start(ctx))
	fmt.Fprintln(stdout, "(commands: /attach <path|data-url|ref>, /detach, /alerts, /reset, /quit)")

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 2*attachment.MaxImageBytes)
	fmt.Fprint(stdout, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return 0
		case line == "/reset":
			printReply(stdout, engine.Reset(ctx))
		case line == "/detach":
			engine.DetachImage()
			fmt.Fprintln(stdout, "(image removed)")
		case line == "/alerts":
			list, err := client.ListIncidents(ctx)
			if err != nil {
				fmt.Fprintln(stderr, "alerts:", err)
				break
			}
			printIncidents(stdout, list)
		case strings.HasPrefix(line, "/attach"):
			img, err := loadImage(strings.TrimSpace(strings.TrimPrefix(line, "/attach")))
			if err != nil {
				fmt.Fprintln(stderr, "attach:", err)
				break
			}
			r := engine.AttachImage(ctx, img)
			printReply(stdout, r)
			if r.Err == nil {
				fmt.Fprintf(stdout, "(image attached: %s)\n", logger.Truncate(r.Draft.Image.Ref, 80))
			}
		default:
			printReply(stdout, engine.SubmitUserTurn(ctx, line, nil))
		}
		if ctx.Err() != nil {
			return 0
		}
		fmt.Fprint(stdout, "> ")
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(stderr, "read input:", err)
		return 1
	}
	return 0
}

// loadImage reads a local file when arg names one; anything else is parsed
// as a data URL or kept as an opaque reference.
func loadImage(arg string) (*llm.Image, error) {
	if arg == "" {
		return nil, errors.New("usage: /attach <path|data-url|ref>")
	}
	if st, err := os.Stat(arg); err == nil && !st.IsDir() {
		return attachment.LoadFile(arg)
	}
	return attachment.Parse(arg)
}

func printReply(w io.Writer, r intake.Reply) {
	for _, t := range r.Turns {
		fmt.Fprintf(w, "CityAlert: %s\n", t.Content)
	}
	if len(r.Choices) > 0 {
		fmt.Fprintln(w, "(type /alerts to view existing alerts or /reset to restart)")
	}
}

func handleAlerts(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	api := fs.String("api", cfg.APIBaseURL, "Incident API base URL")
	once := fs.Bool("once", false, "fetch once and exit")
	interval := fs.Duration("interval", dashboard.PublicInterval, "poll interval")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := incidentapi.New(*api, incidentapi.WithTimeout(cfg.HTTPTimeout))
	m := mapview.New(mapview.WithCenter(cfg.Map.CenterLat, cfg.Map.CenterLng, cfg.Map.Zoom))
	if err := m.Initialize(ctx); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	show := func(list []incident.Incident) {
		printIncidents(stdout, list)
		printMap(stdout, m)
	}

	if *once {
		list, err := client.ListIncidents(ctx)
		if err != nil {
			fmt.Fprintln(stderr, "alerts:", err)
			return 1
		}
		if err := m.UpdateMarkers(list); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		show(list)
		return 0
	}

	p := dashboard.PublicPoller(client, m, show, func(err error) {
		fmt.Fprintln(stderr, "alerts:", err)
	})
	p.Interval = *interval
	p.Run(ctx)
	return 0
}

func handleDashboard(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	api := fs.String("api", cfg.APIBaseURL, "Incident API base URL")
	key := fs.String("key", os.Getenv("CITYALERT_DEPARTMENT_KEY"), "department login key")
	statusFlag := fs.String("status", "", "only show incidents with this status")
	set := fs.String("set", "", "update one incident: ID=STATUS")
	del := fs.Int64("delete", 0, "delete one incident by ID")
	once := fs.Bool("once", false, "fetch once and exit")
	interval := fs.Duration("interval", dashboard.DepartmentInterval, "poll interval")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(stderr, "dashboard requires -key")
		return 2
	}

	var filter incident.Status
	if *statusFlag != "" {
		s, ok := incident.ParseStatus(*statusFlag)
		if !ok {
			fmt.Fprintf(stderr, "unknown status %q\n", *statusFlag)
			return 2
		}
		filter = s
	}

	client := incidentapi.New(*api, incidentapi.WithTimeout(cfg.HTTPTimeout))
	m := mapview.New(mapview.WithCenter(cfg.Map.CenterLat, cfg.Map.CenterLng, cfg.Map.Zoom))
	if err := m.Initialize(ctx); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	board, err := dashboard.Login(ctx, client, *key, dashboard.WithMap(m))
	if err != nil {
		var le *incidentapi.LoginError
		if errors.As(err, &le) {
			fmt.Fprintln(stderr, le.Message)
		} else {
			fmt.Fprintln(stderr, err.Error())
		}
		return 1
	}
	board.SetFilter(filter)
	fmt.Fprintf(stdout, "Department: %s\n", board.Department().Name)

	var list []incident.Incident
	switch {
	case *set != "":
		id, status, err := parseSet(*set)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		list, err = board.SetStatus(ctx, id, status)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "Incident %d marked %s\n", id, status.Label())
	case *del != 0:
		list, err = board.Delete(ctx, *del)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "Incident %d deleted\n", *del)
	case *once:
		list, err = board.Refresh(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
	default:
		p := board.Poller(func(list []incident.Incident) {
			printIncidents(stdout, list)
			printMap(stdout, m)
		}, func(err error) {
			fmt.Fprintln(stderr, "dashboard:", err)
		})
		p.Interval = *interval
		p.Run(ctx)
		return 0
	}

	printIncidents(stdout, list)
	printMap(stdout, m)
	return 0
}

func parseSet(raw string) (int64, incident.Status, error) {
	idPart, statusPart, ok := strings.Cut(raw, "=")
	if !ok {
		return 0, "", fmt.Errorf("-set wants ID=STATUS, got %q", raw)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("-set: bad incident id %q", idPart)
	}
	status, ok := incident.ParseStatus(statusPart)
	if !ok {
		return 0, "", fmt.Errorf("-set: unknown status %q", statusPart)
	}
	return id, status, nil
}

func printIncidents(w io.Writer, list []incident.Incident) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No incidents.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDEPARTMENTS\tDESCRIPTION\tLOCATION\tREPORTED")
	for _, in := range list {
		reported := "-"
		if !in.Timestamp.IsZero() {
			reported = in.Timestamp.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			in.ID, in.Status.Label(), in.DepartmentClassification,
			logger.Truncate(in.Description, 48), logger.Truncate(in.Location, 32), reported)
	}
	_ = tw.Flush()
}

func printMap(w io.Writer, m *mapview.IncidentMap) {
	v := m.Viewport()
	fmt.Fprintf(w, "Map: %d markers, centre %.4f,%.4f zoom %d\n", len(m.Markers()), v.Center.Lat, v.Center.Lng, v.Zoom)
}
