package di

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"

	appconfig "github.com/jesmann/epgmerge/internal/app/config"
	"github.com/jesmann/epgmerge/internal/application/port/output"
	"github.com/jesmann/epgmerge/internal/application/service"
	archiveusecase "github.com/jesmann/epgmerge/internal/application/usecase/archive"
	"github.com/jesmann/epgmerge/internal/application/usecase/mergejob"
	"github.com/jesmann/epgmerge/internal/domain/repository"
	infraconfig "github.com/jesmann/epgmerge/internal/infra/config"
	filestore "github.com/jesmann/epgmerge/internal/infra/persistence/file"
	"github.com/jesmann/epgmerge/internal/infrastructure/gateway/feed"
	"github.com/jesmann/epgmerge/internal/infrastructure/notify"
	sqliterepo "github.com/jesmann/epgmerge/internal/infrastructure/persistence/sqlite"
	"github.com/jesmann/epgmerge/internal/infrastructure/transaction"
)

// Container wires the application by hand, in dependency order
type Container struct {
	cfg appconfig.Config
	db  *sql.DB

	archiveRepo  repository.ArchiveRepository
	jobRepo      repository.JobRepository
	settingsRepo repository.SettingsRepository
	txManager    output.TransactionManager

	store    output.ArtifactStore
	engine   output.MergeEngine
	notifier output.Notifier

	sweeper   *service.RetentionSweeper
	executor  *mergejob.Executor
	archiveUC *archiveusecase.UseCase
	scheduler *service.Scheduler

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewContainer builds the container. The database is opened and migrated.
// Commands that execute jobs call Executor().ReconcileStartup themselves;
// read-only commands must not, or they would mark a job running in another
// process as failed.
func NewContainer(cfg appconfig.Config, infoLog, warnLog func(format string, args ...interface{})) (*Container, error) {
	c := &Container{cfg: cfg, infoLog: infoLog, warnLog: warnLog}

	if err := os.MkdirAll(cfg.Home(), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	if err := c.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	if err := c.initializeApplication(); err != nil {
		c.db.Close()
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return c, nil
}

func (c *Container) initializeInfrastructure() error {
	db, err := sql.Open("sqlite3", c.cfg.DBPath()+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	c.db = db

	if err := sqliterepo.NewMigrator(db).Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	c.txManager = transaction.NewSQLiteTransactionManager(db)
	c.archiveRepo = sqliterepo.NewArchiveRepository(db, c.txManager)
	c.jobRepo = sqliterepo.NewJobRepository(db)
	c.settingsRepo = sqliterepo.NewSettingsRepository(db)

	fs := afero.NewOsFs()
	store, err := filestore.NewStore(fs, c.cfg.ArtifactsDir())
	if err != nil {
		db.Close()
		return fmt.Errorf("create artifact store: %w", err)
	}
	c.store = store

	manifest, err := infraconfig.LoadManifest(fs, c.cfg.ManifestPath())
	if err != nil {
		db.Close()
		return fmt.Errorf("load source manifest: %w", err)
	}
	c.engine = feed.NewEngine(fs, nil, manifest, c.cfg.CacheDir(), c.cfg.WorkDir(), c.infoLog, c.warnLog)
	c.notifier = notify.NewDiscordNotifier(nil, c.settingsRepo, c.infoLog, c.warnLog)
	return nil
}

func (c *Container) initializeApplication() error {
	c.sweeper = service.NewRetentionSweeper(c.archiveRepo, c.store, c.infoLog, c.warnLog)

	c.executor = mergejob.NewExecutor(mergejob.Config{
		Store:        c.store,
		Engine:       c.engine,
		Archives:     c.archiveRepo,
		Jobs:         c.jobRepo,
		Settings:     c.settingsRepo,
		Notifier:     c.notifier,
		Sweeper:      c.sweeper,
		HistoryLimit: c.cfg.HistoryLimit(),
		InfoLog:      c.infoLog,
		WarnLog:      c.warnLog,
	})

	c.archiveUC = archiveusecase.NewUseCase(c.archiveRepo, c.store, c.settingsRepo, c.warnLog)
	c.scheduler = service.NewScheduler(c.executor, c.settingsRepo, c.cfg.TickInterval(), c.infoLog, c.warnLog)
	return nil
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Container) Config() appconfig.Config                { return c.cfg }
func (c *Container) Executor() *mergejob.Executor            { return c.executor }
func (c *Container) ArchiveUseCase() *archiveusecase.UseCase { return c.archiveUC }
func (c *Container) Scheduler() *service.Scheduler           { return c.scheduler }
func (c *Container) Sweeper() *service.RetentionSweeper      { return c.sweeper }
func (c *Container) JobRepository() repository.JobRepository { return c.jobRepo }

func (c *Container) SettingsRepository() repository.SettingsRepository {
	return c.settingsRepo
}
