package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/db"
	"codequiz-publisher/pkg/minio"
	"codequiz-publisher/pkg/task"
	"codequiz-publisher/services/media"
	"codequiz-publisher/services/quiz"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const usage = `usage: quizctl <command> [flags]

commands:
  import_tasks               import tasks from a JSON file
  generate_videos            generate typing videos for tasks
  fix_unsupported_languages  rewrite unknown code-fence language tags
  migrate_s3_to_r2_urls      rewrite stored media URLs to a new host
  reset_task_sequences       realign postgres id sequences after imports
  normalize_subtopics        slugify subtopic names
`

func main() {
	log := zap.Must(zap.NewDevelopment())
	zap.ReplaceGlobals(log)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	gdb := db.New(cfg, db.Dialect(cfg))
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "import_tasks":
		err = runImport(ctx, cfg, gdb, os.Args[2:])
	case "generate_videos":
		err = runGenerateVideos(ctx, cfg, gdb, os.Args[2:])
	case "fix_unsupported_languages":
		err = runFixLanguages(ctx, gdb, os.Args[2:])
	case "migrate_s3_to_r2_urls":
		err = runMigrateURLs(ctx, gdb, os.Args[2:])
	case "reset_task_sequences":
		err = runResetSequences(ctx, cfg, gdb)
	case "normalize_subtopics":
		err = runNormalizeSubtopics(ctx, cfg, gdb, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		zap.L().Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(2)
	}
}

func newQuizService(cfg *config.Config, gdb *gorm.DB) (*quiz.Service, func(), error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, nil, err
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	svc := quiz.NewService(quiz.ServiceParams{
		DB:       gdb,
		Node:     node,
		Enqueuer: task.NewEnqueuer(client),
	})
	return svc, func() { client.Close() }, nil
}

func runImport(ctx context.Context, cfg *config.Config, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("import_tasks", flag.ContinueOnError)
	file := fs.String("file", "", "path to the JSON task file")
	publish := fs.Bool("publish", false, "publish each imported task")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *file == "" {
		fs.Usage()
		os.Exit(1)
	}

	svc, closeFn, err := newQuizService(cfg, gdb)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := svc.Import(ctx, *file, *publish)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d tasks (publish=%v)\n", n, *publish)
	return nil
}

func runGenerateVideos(ctx context.Context, cfg *config.Config, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("generate_videos", flag.ContinueOnError)
	taskID := fs.Int64("task-id", 0, "generate for one task")
	all := fs.Bool("all", false, "generate for every video-enabled task missing a video")
	limit := fs.Int("limit", 10, "max tasks to process with --all")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *taskID == 0 && !*all {
		fs.Usage()
		os.Exit(1)
	}

	client, err := minio.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("minio client: %w", err)
	}
	renderer, err := media.NewRenderer()
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	storage := media.NewStorage(media.StorageParams{Client: client, Cfg: cfg})
	generator := media.NewGenerator(media.GeneratorParams{Renderer: renderer, Cfg: cfg})

	var tasks []quiz.Task
	q := gdb.WithContext(ctx).Preload("Translations")
	if *taskID != 0 {
		q = q.Where("id = ?", *taskID)
	} else {
		q = q.Where("video_enabled = ? AND (video_url IS NULL OR video_url = '')", true).
			Limit(*limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks to process")
		return nil
	}

	for _, t := range tasks {
		tr := t.PrimaryTranslation()
		if tr == nil {
			zap.L().Warn("task has no translations, skipping", zap.Int64("task_id", t.ID))
			continue
		}

		track, err := media.PickTrack(ctx, gdb)
		if err != nil {
			zap.L().Warn("track lookup failed", zap.Error(err))
		}

		progress := make(chan int)
		go func() {
			for pct := range progress {
				fmt.Printf("\rtask %d: %3d%%", t.ID, pct)
			}
			fmt.Println()
		}()

		video, err := generator.Generate(ctx, tr.Question, t.Topic, track, progress)
		if err != nil {
			return fmt.Errorf("generate video for task %d: %w", t.ID, err)
		}
		url, err := storage.Upload(ctx, media.VideoKey(t.ID), video, "video/mp4")
		if err != nil {
			return fmt.Errorf("upload video for task %d: %w", t.ID, err)
		}
		if err := gdb.WithContext(ctx).Model(&quiz.Task{}).
			Where("id = ?", t.ID).
			Update("video_url", url).Error; err != nil {
			return err
		}
		fmt.Printf("task %d: %s\n", t.ID, url)
	}
	return nil
}

func runFixLanguages(ctx context.Context, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("fix_unsupported_languages", flag.ContinueOnError)
	fix := fs.Bool("fix", false, "apply the rewrites (default is dry-run)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	n, err := media.FixUnsupportedLanguages(ctx, gdb, *fix)
	if err != nil {
		return err
	}
	if *fix {
		fmt.Printf("rewrote %d translations\n", n)
	} else {
		fmt.Printf("%d translations would be rewritten (re-run with --fix)\n", n)
	}
	return nil
}

func runMigrateURLs(ctx context.Context, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("migrate_s3_to_r2_urls", flag.ContinueOnError)
	oldDomain := fs.String("old-domain", "", "host to migrate away from")
	newDomain := fs.String("new-domain", "", "host to migrate to")
	dryRun := fs.Bool("dry-run", false, "report without writing")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *oldDomain == "" || *newDomain == "" {
		fs.Usage()
		os.Exit(1)
	}

	n, err := media.MigrateHost(ctx, gdb, *oldDomain, *newDomain, *dryRun)
	if err != nil {
		return err
	}
	if *dryRun {
		fmt.Printf("%d tasks would be updated\n", n)
	} else {
		fmt.Printf("updated %d tasks\n", n)
	}
	return nil
}

func runResetSequences(ctx context.Context, cfg *config.Config, gdb *gorm.DB) error {
	svc, closeFn, err := newQuizService(cfg, gdb)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := svc.ResetSequences(ctx); err != nil {
		return err
	}
	fmt.Println("sequences realigned")
	return nil
}

func runNormalizeSubtopics(ctx context.Context, cfg *config.Config, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("normalize_subtopics", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "write the normalized names (default is dry-run)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	svc, closeFn, err := newQuizService(cfg, gdb)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := svc.NormalizeSubtopics(ctx, *apply)
	if err != nil {
		return err
	}
	if *apply {
		fmt.Printf("normalized %d subtopics\n", n)
	} else {
		fmt.Printf("%d subtopics would change (re-run with --apply)\n", n)
	}
	return nil
}
