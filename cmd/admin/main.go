package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"schoolPrint/internal/auth"
	"schoolPrint/internal/config"
	"schoolPrint/internal/database"
	"schoolPrint/internal/pdf"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

const usage = `用法: admin <command> [flags]

命令:
  migrate       创建或更新数据库表
  seed-school   新建学校（按 slug 幂等）
  upload        上传学生照片或卡片背景图到对象存储
  token         为学校签发访问令牌
  ls            列出学校在对象存储中的资源
  render        离线渲染文档到本地文件
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(args)
	case "seed-school":
		err = runSeedSchool(ctx, args, logger)
	case "upload":
		err = runUpload(ctx, args, logger)
	case "token":
		err = runToken(args)
	case "ls":
		err = runList(ctx, args)
	case "render":
		err = runRender(ctx, args, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// dbFlags 注册数据库连接参数，未指定时回落到环境变量。
type dbFlags struct {
	host, name, user, password, sslMode *string
	port                                *int
}

func registerDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		host:     fs.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）"),
		port:     fs.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）"),
		name:     fs.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）"),
		user:     fs.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）"),
		password: fs.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）"),
		sslMode:  fs.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）"),
	}
}

func (f dbFlags) open() (*records.Store, error) {
	cfg, err := loadDatabaseConfig(*f.host, *f.port, *f.name, *f.user, *f.password, *f.sslMode)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return records.NewStore(db, slog.Default()), nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	db := registerDBFlags(fs)
	_ = fs.Parse(args)

	if _, err := db.open(); err != nil {
		return err
	}
	fmt.Println("数据库表已就绪")
	return nil
}

func runSeedSchool(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("seed-school", flag.ExitOnError)
	db := registerDBFlags(fs)
	name := fs.String("name", "", "学校名称（必填）")
	address := fs.String("address", "", "学校地址")
	slug := fs.String("slug", "", "学校唯一标识（必填）")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*slug) == "" {
		return errors.New("missing required flags: --name, --slug")
	}

	store, err := db.open()
	if err != nil {
		return err
	}
	school, err := store.CreateSchool(ctx, strings.TrimSpace(*name), strings.TrimSpace(*address), strings.TrimSpace(*slug))
	if err != nil {
		return err
	}
	logger.Info("school ready", slog.Uint64("school_id", uint64(school.ID)), slog.String("slug", school.Slug))
	fmt.Printf("学校 ID: %d\n", school.ID)
	return nil
}

func runUpload(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	schoolID := fs.Uint("school", 0, "学校 ID（必填）")
	kind := fs.String("type", "photo", "资源类型：photo 或 background")
	file := fs.String("file", "", "本地图片路径（必填）")
	studentID := fs.Uint("student", 0, "上传照片后写回该学生记录（可选）")
	_ = fs.Parse(args)

	if *schoolID == 0 || strings.TrimSpace(*file) == "" {
		return errors.New("missing required flags: --school, --file")
	}

	var key string
	switch *kind {
	case "photo":
		key = storage.PhotoKey(*schoolID, *file)
	case "background":
		key = storage.BackgroundKey(*schoolID, *file)
	default:
		return fmt.Errorf("unknown type %q", *kind)
	}
	if !storage.ValidObjectKey(storage.SchoolPrefix(*schoolID), key) {
		return fmt.Errorf("unsupported image file %q", *file)
	}

	cfg := config.MustLoad()
	client, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open %s: %w", *file, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", *file, err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(*file)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := client.UploadFile(ctx, key, f, info.Size(), contentType); err != nil {
		return err
	}
	logger.Info("asset uploaded", slog.String("key", key), slog.Int64("size", info.Size()))

	if *studentID != 0 {
		db, err := database.InitDatabase(cfg.Database)
		if err != nil {
			return err
		}
		if err := records.NewStore(db, logger).SetStudentPhoto(ctx, *schoolID, *studentID, key); err != nil {
			return err
		}
		logger.Info("photo attached", slog.Uint64("student_id", uint64(*studentID)))
	}
	fmt.Println(key)
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	schoolID := fs.Uint("school", 0, "学校 ID（必填）")
	role := fs.String("role", auth.RoleStaff, "令牌角色")
	privatePath := fs.String("private-key", envOr("JWT_PRIVATE_KEY_PATH", "keys/jwt_private.pem"), "RSA 私钥路径")
	publicPath := fs.String("public-key", envOr("JWT_PUBLIC_KEY_PATH", "keys/jwt_public.pem"), "RSA 公钥路径")
	ttl := fs.Duration("ttl", 12*time.Hour, "令牌有效期")
	_ = fs.Parse(args)

	if *schoolID == 0 {
		return errors.New("missing required flag: --school")
	}

	privatePEM, err := os.ReadFile(*privatePath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(*publicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	svc, err := auth.NewAuthService(privatePEM, publicPEM, *ttl)
	if err != nil {
		return err
	}
	token, err := svc.IssueToken(*schoolID, *role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	schoolID := fs.Uint("school", 0, "学校 ID（必填）")
	limit := fs.Int("limit", 100, "最多列出的对象数")
	_ = fs.Parse(args)

	if *schoolID == 0 {
		return errors.New("missing required flag: --school")
	}

	cfg := config.MustLoad()
	client, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return err
	}
	objects, err := client.ListObjects(ctx, storage.SchoolPrefix(*schoolID), *limit)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		fmt.Printf("%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339))
	}
	return nil
}

func runRender(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	schoolID := fs.Uint("school", 0, "学校 ID（必填）")
	kindFlag := fs.String("kind", string(render.KindIDCard), "文档类型：id-card、admit-card、result-sheet")
	class := fs.String("class", "", "按班级过滤")
	section := fs.String("section", "", "按分班过滤")
	exam := fs.String("exam", "", "考试名称（成绩单必填）")
	out := fs.String("out", "", "输出文件路径（默认按类型与时间生成）")
	_ = fs.Parse(args)

	if *schoolID == 0 {
		return errors.New("missing required flag: --school")
	}
	kind, ok := render.ParseKind(*kindFlag)
	if !ok {
		return fmt.Errorf("unknown kind %q", *kindFlag)
	}
	if kind == render.KindResultSheet && strings.TrimSpace(*exam) == "" {
		return errors.New("--exam is required for result sheets")
	}

	cfg := config.MustLoad()
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return err
	}
	client, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return err
	}
	resolver, err := render.NewResolver(client, render.ResolverOptions{
		BaseURL:      cfg.Render.AssetBaseURL,
		AllowedHosts: cfg.Render.AllowedAssetHosts,
		Timeout:      cfg.Render.FetchTimeout,
		MaxBytes:     cfg.Render.MaxAssetBytes,
	})
	if err != nil {
		return err
	}
	engine := render.NewEngine(resolver, logger, render.Options{
		PrefetchWorkers:     cfg.Render.PrefetchWorkers,
		PrefetchWindow:      cfg.Render.PrefetchWindow,
		CacheTemplateAssets: cfg.Render.CacheTemplateAssets,
	})

	store := records.NewStore(db, logger)
	tpl, geom, err := store.LoadTemplate(ctx, *schoolID, kind)
	if err != nil {
		return err
	}
	entities, err := store.ListStudents(ctx, *schoolID, records.Filter{Class: *class, Section: *section, Exam: *exam})
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = render.Filename(kind, time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	stats, err := engine.Render(ctx, render.Job{
		Kind:     kind,
		Entities: entities,
		Template: tpl,
		Geometry: geom,
		Meta: pdf.Meta{
			Title:   tpl.Resolve(kind).Title,
			Author:  tpl.Institution.Name,
			Creator: "schoolPrint admin",
		},
	}, f)
	if err != nil {
		return err
	}
	logger.Info("document written",
		slog.String("path", path),
		slog.Int("entities", stats.Entities),
		slog.Int("pages", stats.Pages),
		slog.Int("missing_assets", stats.MissingAssets),
		slog.Int64("bytes", stats.Bytes),
	)
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = envOr("POSTGRES_DB", "schoolprint")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
