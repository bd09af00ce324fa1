package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/internal/cache"
	"github.com/avelar/taskhub/internal/channel"
	"github.com/avelar/taskhub/internal/coordinator"
	"github.com/avelar/taskhub/internal/editing"
	"github.com/avelar/taskhub/internal/mcp"
	"github.com/avelar/taskhub/internal/notify"
	"github.com/avelar/taskhub/internal/presence"
	"github.com/avelar/taskhub/internal/store"
	"github.com/avelar/taskhub/internal/ui"
	"github.com/avelar/taskhub/pkg/models"
)

var (
	serverURL string
	dbPath    string
	addr      string
	userName  string
	priority  string
	assignee  string
	dueDate   string
)

func main() {
	flag.StringVar(&serverURL, "server", "http://localhost:8787", "Base URL of the taskhub server")
	flag.StringVar(&dbPath, "db-path", ".taskhub/taskhub.db", "Path to the server database file")
	flag.StringVar(&addr, "addr", "localhost:8787", "Address for the server to listen on")
	flag.StringVar(&userName, "name", defaultUserName(), "Display name for collaboration")
	flag.StringVar(&priority, "priority", "", "Task priority (low|medium|high|urgent)")
	flag.StringVar(&assignee, "assign", "", "Assignee name")
	flag.StringVar(&dueDate, "due", "", "Due date (YYYY-MM-DD)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskhub [flags] <serve|list|add|done|watch|mcp> [args]")
		os.Exit(1)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "serve":
		err = runServe()
	case "list":
		err = runList()
	case "add":
		err = runAdd(args)
	case "done":
		err = runDone(args)
	case "watch":
		err = runWatch()
	case "mcp":
		err = runMCP()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultUserName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

// userColor picks a stable display color for a name.
func userColor(name string) string {
	palette := []string{"#e06c75", "#98c379", "#e5c07b", "#61afef", "#c678dd", "#56b6c2"}
	h := fnv.New32a()
	h.Write([]byte(name))
	return palette[h.Sum32()%uint32(len(palette))]
}

func runServe() error {
	logger := slog.Default()

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Init(ctx); err != nil {
		return err
	}

	hub := channel.NewHub()

	// Nudge connected clients whenever the authoritative store changes,
	// regardless of which client (or agent) caused the write.
	serverCh := hub.Channel("server:" + uuid.New().String())
	if err := serverCh.Subscribe(func(channel.Event) {}); err != nil {
		return err
	}
	db.SetOnChange(func(ctx context.Context) {
		if err := serverCh.Broadcast(ctx, "tasks_changed", struct{}{}); err != nil {
			logger.Warn("failed to broadcast change", "err", err)
		}
	})

	rest := store.NewRESTServer(db, activity.NewSQLiteRecorder(db.DB), logger)
	router := rest.Router()
	router.Handle("/channel", channel.NewWSHandler(hub, logger))

	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("taskhub server listening", "addr", addr, "db", dbPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newCoordinator wires a client-side coordinator against the remote
// server and loads the initial task list.
func newCoordinator(ctx context.Context) (*coordinator.Coordinator, error) {
	actor := models.User{
		ID:    uuid.New().String(),
		Name:  userName,
		Color: userColor(userName),
	}
	taskStore := store.NewClient(serverURL, nil)
	recorder := activity.NewHTTPRecorder(serverURL, nil)
	coord := coordinator.New(cache.New(), taskStore, recorder, notify.NewLogNotifier(nil), actor, nil)

	if err := coord.Refresh(ctx); err != nil {
		return nil, err
	}
	return coord, nil
}

func channelURL() string {
	ws := strings.Replace(serverURL, "http://", "ws://", 1)
	ws = strings.Replace(ws, "https://", "wss://", 1)
	return strings.TrimSuffix(ws, "/") + "/channel"
}

func runList() error {
	ctx := context.Background()
	coord, err := newCoordinator(ctx)
	if err != nil {
		return err
	}

	tasks := coord.Cache().List()
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %-36s  %-11s %-6s", mark, t.ID, t.Status, t.Priority)
		if t.AssignedTo != nil {
			line += " @" + *t.AssignedTo
		}
		if t.DueDate != nil {
			line += " due " + *t.DueDate
		}
		fmt.Printf("%s  %s\n", line, t.Text)
	}
	return nil
}

func runAdd(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: taskhub add <text>")
	}

	ctx := context.Background()
	coord, err := newCoordinator(ctx)
	if err != nil {
		return err
	}

	in := coordinator.CreateInput{
		Text:     strings.Join(args, " "),
		Priority: models.Priority(priority),
	}
	if assignee != "" {
		in.AssignedTo = &assignee
	}
	if dueDate != "" {
		in.DueDate = &dueDate
	}

	t, err := coord.CreateTask(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created task %s\n", t.ID)
	return nil
}

func runDone(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: taskhub done <task-id>")
	}

	ctx := context.Background()
	coord, err := newCoordinator(ctx)
	if err != nil {
		return err
	}

	result, err := coord.ToggleCompletion(ctx, args[0], true)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", result.Action)
	if result.Celebration != nil {
		fmt.Println(result.Celebration.Message)
	}
	if result.RecurrenceErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: next occurrence not created: %v\n", result.RecurrenceErr)
	}
	return nil
}

func runWatch() error {
	ctx := context.Background()
	coord, err := newCoordinator(ctx)
	if err != nil {
		return err
	}
	actor := coord.Actor()

	presenceCh, err := channel.Dial(channelURL(), "presence:"+actor.ID, nil)
	if err != nil {
		return err
	}
	tracker := presence.NewTracker(presenceCh, models.PresenceState{
		UserID:   actor.ID,
		Name:     actor.Name,
		Color:    actor.Color,
		JoinedAt: time.Now().UTC(),
		Location: "board",
	}, nil)
	if err := tracker.Subscribe(ctx); err != nil {
		return err
	}
	defer tracker.Close()

	editingCh, err := channel.Dial(channelURL(), "editing:"+actor.ID, nil)
	if err != nil {
		return err
	}
	editors := editing.NewBroadcaster(editingCh, actor, nil)
	if err := editors.Subscribe(); err != nil {
		return err
	}
	defer editors.Close()

	// Keep the board fresh while watching.
	refreshCh, err := channel.Dial(channelURL(), "refresh:"+actor.ID, nil)
	if err != nil {
		return err
	}
	defer refreshCh.Close()
	if err := refreshCh.Subscribe(func(ev channel.Event) {
		if ev.Kind == channel.KindBroadcast && ev.Event == "tasks_changed" {
			if err := coord.Refresh(context.Background()); err != nil {
				slog.Warn("failed to refresh tasks", "err", err)
			}
		}
	}); err != nil {
		return err
	}

	return ui.RunWatch(coord, tracker, editors)
}

func runMCP() error {
	ctx := context.Background()
	coord, err := newCoordinator(ctx)
	if err != nil {
		return err
	}
	return mcp.Serve(mcp.NewServer(coord))
}
