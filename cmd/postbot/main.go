package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cafeworks/postbot/config"
	"github.com/cafeworks/postbot/internal/bootstrap"
	"github.com/cafeworks/postbot/internal/data"
	"github.com/cafeworks/postbot/internal/domain/model"
	"github.com/cafeworks/postbot/internal/queue"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	cmdName := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmdName = os.Args[1]
		args = os.Args[2:]
	}

	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2)
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1)
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, args); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1)
	}
}

func commands() map[string]command {
	return map[string]command{
		"serve": {
			name:        "serve",
			description: "Run the services selected by SERVICES (worker, collector)",
			run:         runServe,
		},
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"enqueue": {
			name:        "enqueue",
			description: "Create a job row and submit it to the queue",
			run:         runEnqueue,
		},
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, "Usage: postbot <command> [flags]\n\n")
	fmt.Fprintf(os.Stdout, "Available commands:\n")
	for _, c := range commands() {
		fmt.Fprintf(os.Stdout, "  %-12s %s\n", c.name, c.description)
	}
}

func runServe(cmdCtx *commandContext, _ []string) error {
	app, err := bootstrap.NewApp(cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	return app.Run()
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "migration timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer closeQuietly(db.Close, cmdCtx.Logger, "db close failed")

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	jobType := fs.String("type", "", "job type (init_session, verify_session, create_post, sync_posts, delete_post)")
	userID := fs.String("user", "", "owning user id")
	accountID := fs.String("account", "", "remote account id (optional)")
	payloadJSON := fs.String("payload", "{}", "job payload as JSON")
	queueName := fs.String("queue", cmdCtx.Config.Worker.QueueName, "target queue")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var t model.JobType
	if err := t.UnmarshalText([]byte(*jobType)); err != nil {
		return err
	}
	payload, err := model.DecodePayload(t, json.RawMessage(*payloadJSON))
	if err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 30*time.Second)
	defer cancel()

	db, err := bootstrap.ConnectDB(cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer closeQuietly(db.Close, cmdCtx.Logger, "db close failed")

	redisClient, err := bootstrap.ConnectRedis(cmdCtx.Config.Redis, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer closeQuietly(redisClient.Close, cmdCtx.Logger, "redis close failed")

	req := &model.CreateJobRequest{
		Type:    t,
		Payload: json.RawMessage(*payloadJSON),
		UserID:  *userID,
	}
	if *accountID != "" {
		req.AccountID = accountID
	}

	jobs := data.NewJobRepo(db, data.JobRepoConfig{Logger: cmdCtx.Logger})
	job, err := jobs.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	q, err := queue.NewRedisQueue(queue.RedisQueueOptions{Client: redisClient, Name: *queueName})
	if err != nil {
		return err
	}
	if err := q.Enqueue(ctx, job.ID); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	cmdCtx.Logger.InfoContext(ctx, "job enqueued", "job_id", job.ID, "type", job.Type, "queue", *queueName)
	return nil
}

func closeQuietly(closeFn func() error, logger *slog.Logger, msg string) {
	if err := closeFn(); err != nil {
		logger.Warn(msg, "error", err)
	}
}
