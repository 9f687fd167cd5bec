package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bartossh/Rampart/logger"
)

const (
	ApiVersion = "1.0.0"
	Header     = "Rampart-Emulator"
)

const (
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 24 * time.Hour
	defaultAdminEmail    = "admin@rampart.local"
	defaultAdminPassword = "rampart"
	defaultAudience      = "rampart"
	defaultPort          = 8000
)

const (
	apiGroupURL    = "/api"
	oauthGroupURL  = "/oauth"
	clusterURL     = "/cluster"
	SocketURL      = "/socket.io/"
	collectionURL  = "/:collection"
	collectionItem = "/:collection/:id"
)

var (
	ErrWrongPortSpecified = errors.New("port must be between 1 and 65535")
	ErrMissingSecret      = errors.New("token secret must be at least 16 characters long")
)

// Config contains configuration of the emulator.
type Config struct {
	Port          int           `yaml:"port"`           // Port to listen on.
	Secret        string        `yaml:"secret"`         // HS256 signing secret of issued tokens.
	Audience      string        `yaml:"audience"`       // Audience claim of issued tokens.
	AccessTTL     time.Duration `yaml:"access_ttl"`     // Lifetime of access tokens.
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`    // Lifetime of refresh tokens.
	AdminEmail    string        `yaml:"admin_email"`    // Seeded administrator account.
	AdminPassword string        `yaml:"admin_password"` // Seeded administrator password.
	ApplyDelay    time.Duration `yaml:"apply_delay"`    // Time an apply stays active.
	Nodes         []string      `yaml:"nodes"`          // Names of emulated cluster nodes.
	Storage       string        `yaml:"storage"`        // memory, mongo or postgres.
	MongoURI      string        `yaml:"mongo_uri"`
	MongoDatabase string        `yaml:"mongo_database"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
}

func (c Config) validate() (Config, error) {
	if c.Port < 0 || c.Port > 65535 {
		return c, ErrWrongPortSpecified
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if len(c.Secret) < 16 {
		return c, ErrMissingSecret
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = defaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaultRefreshTTL
	}
	if c.AdminEmail == "" {
		c.AdminEmail = defaultAdminEmail
	}
	if c.AdminPassword == "" {
		c.AdminPassword = defaultAdminPassword
	}
	if c.Audience == "" {
		c.Audience = defaultAudience
	}
	if len(c.Nodes) == 0 {
		c.Nodes = []string{"rampart-main"}
	}
	return c, nil
}

// Server emulates the management API of the cluster.
type Server struct {
	cfg      Config
	repo     Repository
	log      logger.Logger
	hub      *hub
	app      *fiber.App
	applying atomic.Bool
	writeMux sync.Mutex
	tokenMux sync.Mutex
	live     map[string]struct{}
	now      func() time.Time
}

// New creates the Server and seeds the administrator account when the user collection is empty.
func New(ctx context.Context, cfg Config, repo Repository, log logger.Logger) (*Server, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:  cfg,
		repo: repo,
		log:  log,
		hub:  newHub(log),
		live: make(map[string]struct{}),
		now:  time.Now,
	}
	if err := s.seed(ctx); err != nil {
		return nil, err
	}
	s.app = s.router()
	return s, nil
}

func (s *Server) router() *fiber.App {
	router := fiber.New(fiber.Config{
		Prefork:               false,
		CaseSensitive:         true,
		StrictRouting:         true,
		ReadTimeout:           time.Second * 5,
		WriteTimeout:          time.Second * 5,
		ServerHeader:          Header,
		AppName:               ApiVersion,
		Concurrency:           4096,
		BodyLimit:             32 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	router.Use(recover.New())

	router.Get(SocketURL, s.wsWrapper)

	api := router.Group(apiGroupURL)
	oauth := api.Group(oauthGroupURL)
	oauth.Post("/login", s.login)
	oauth.Get("/token", s.refresh)
	oauth.Get("/:provider/callback", s.callback)

	api.Use(s.authenticate)
	oauth.Delete("/logout", s.logout)

	cluster := api.Group(clusterURL)
	cluster.Get("/health", s.health)
	cluster.Get("/changes", s.changes)
	cluster.Get("/apply", s.apply)
	cluster.Get("/backup", s.backup)
	cluster.Post("/backup", s.restore)
	cluster.Get("/nodes", s.nodes)
	cluster.Get("/config", s.config)
	cluster.Put("/config", s.updateConfig)

	api.Put("/user/:id/account", s.updateAccount)
	api.Get("/rulecat/by_name/:name", s.ruleCategoryByName)
	api.Get("/rulesec/by_code/:code", s.rulesByCode)
	api.Post("/trn/stats/tpm", s.transactionsPerMinute)
	api.Post("/trn", s.searchTransactions)

	api.Get(collectionURL, s.list)
	api.Post(collectionURL, s.create)
	api.Get(collectionItem, s.read)
	api.Put(collectionItem, s.replace)
	api.Patch(collectionItem, s.patch)
	api.Delete(collectionItem, s.remove)

	return router
}

// App exposes the router.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured port. It blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, func() error {
		return s.app.Listen(fmt.Sprintf("0.0.0.0:%v", s.cfg.Port))
	})
}

// Serve accepts connections on ln. It blocks until the context is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, func() error {
		return s.app.Listener(ln)
	})
}

func (s *Server) serve(ctx context.Context, listen func() error) error {
	var err error
	ctxx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.run(ctxx)
	failed := make(chan error, 1)
	go func() {
		if errx := listen(); errx != nil {
			failed <- errx
		}
	}()

	select {
	case <-ctxx.Done():
	case err = <-failed:
		s.log.Error(fmt.Sprintf("emulator listener stopped: %s", err))
	}

	if errx := s.app.Shutdown(); errx != nil {
		err = errors.Join(err, errx)
	}
	ctxxx, cancelx := context.WithTimeout(context.Background(), time.Second*5)
	defer cancelx()
	if errx := s.repo.Disconnect(ctxxx); errx != nil {
		err = errors.Join(err, errx)
	}
	return err
}
