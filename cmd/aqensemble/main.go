package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"gopkg.in/natefinch/lumberjack.v2"
	_ "modernc.org/sqlite"

	"github.com/lox/aqensemble/internal/api"
	"github.com/lox/aqensemble/internal/config"
	"github.com/lox/aqensemble/internal/evaluate"
	"github.com/lox/aqensemble/internal/measure"
	"github.com/lox/aqensemble/internal/store"
)

const defaultDB = "data/aqensemble.db"

type Globals struct {
	DB      string `help:"Path to SQLite database. Defaults to the configured one." env:"AQENSEMBLE_DB"`
	LogFile string `help:"Write logs to a rotating file instead of stderr." type:"path"`
}

type CLI struct {
	Globals
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	Migrate  MigrateCmd  `cmd:"" help:"Apply database migrations."`
	SeedDemo SeedDemoCmd `cmd:"" help:"Fill the database with a synthetic ensemble."`
	Run      RunCmd      `cmd:"" help:"Run configured methods one after the other."`
	Compare  CompareCmd  `cmd:"" help:"Run configured methods in parallel and print their scores."`
	Stats    StatsCmd    `cmd:"" help:"Score the raw ensemble members."`
	Serve    ServeCmd    `cmd:"" help:"Serve stored runs over HTTP."`
}

func openDB(path string) (*store.Store, func(), error) {
	if path == "" {
		path = defaultDB
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return store.New(db), func() { db.Close() }, nil
}

// openStore opens the database and brings its schema up to date.
func openStore(path string) (*store.Store, func(), error) {
	st, closeDB, err := openDB(path)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, closeDB, nil
}

// configStore loads a configuration and opens its database, unless --db
// overrides it.
func configStore(g *Globals, path string) (*config.Config, *store.Store, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dbPath := g.DB
	if dbPath == "" {
		dbPath = cfg.Input.Database
	}
	st, closeDB, err := openStore(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, closeDB, nil
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	st, closeDB, err := openDB(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()
	applied, version, err := migrate(st)
	if err != nil {
		return err
	}
	log.Printf("applied %d migrations, database at schema version %d", applied, version)
	return nil
}

// migrate counts the pending migrations before applying them.
func migrate(st *store.Store) (applied, version int, err error) {
	if applied, err = st.PendingMigrations(); err != nil {
		return 0, 0, err
	}
	if err = st.Migrate(); err != nil {
		return 0, 0, fmt.Errorf("migrate: %w", err)
	}
	if version, err = st.MigrationVersion(); err != nil {
		return 0, 0, err
	}
	return applied, version, nil
}

type SeedDemoCmd struct {
	Origin   time.Time `help:"First simulated hour." default:"2001-05-01T00:00:00Z"`
	Days     int       `help:"Number of simulated days." default:"30"`
	Stations int       `help:"Number of stations." default:"8"`
	Seed     uint64    `help:"Random seed." default:"1"`
}

func (c *SeedDemoCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()
	return evaluate.SeedDemo(st, evaluate.DemoOptions{
		Origin:   c.Origin.UTC(),
		Days:     c.Days,
		Stations: c.Stations,
		Seed:     c.Seed,
	})
}

type RunCmd struct {
	Config string   `help:"Path to TOML configuration." required:"" type:"existingfile"`
	Method []string `help:"Only run the methods with these labels."`
}

func (c *RunCmd) Run(g *Globals) error {
	cfg, st, closeDB, err := configStore(g, c.Config)
	if err != nil {
		return err
	}
	defer closeDB()

	ens, err := evaluate.LoadEnsemble(st, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := evaluate.NewRunner(st, cfg, measure.Default())
	var results []evaluate.Result
	for _, mc := range cfg.Methods {
		if len(c.Method) > 0 && !slices.Contains(c.Method, mc.ID()) {
			continue
		}
		res, err := runner.RunMethod(ctx, ens, mc)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	printScores(os.Stdout, cfg, results)
	return nil
}

type CompareCmd struct {
	Config   string `help:"Path to TOML configuration." required:"" type:"existingfile"`
	Parallel int    `help:"Maximum methods run at once. Defaults to GOMAXPROCS."`
}

func (c *CompareCmd) Run(g *Globals) error {
	cfg, st, closeDB, err := configStore(g, c.Config)
	if err != nil {
		return err
	}
	defer closeDB()

	ens, err := evaluate.LoadEnsemble(st, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := evaluate.NewRunner(st, cfg, measure.Default())
	if c.Parallel > 0 {
		runner.Parallel = c.Parallel
	}
	results, err := runner.Compare(ctx, ens)
	if err != nil {
		return err
	}
	printScores(os.Stdout, cfg, results)
	return nil
}

type StatsCmd struct {
	Config string `help:"Path to TOML configuration." required:"" type:"existingfile"`
	Bins   int    `help:"Number of bins of the observed density." default:"10"`
}

func (c *StatsCmd) Run(g *Globals) error {
	cfg, st, closeDB, err := configStore(g, c.Config)
	if err != nil {
		return err
	}
	defer closeDB()

	ens, err := evaluate.LoadEnsemble(st, cfg)
	if err != nil {
		return err
	}
	sum, err := evaluate.Describe(ens, cfg, measure.Default(), c.Bins)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 1, 2, ' ', 0)
	fmt.Fprintf(w, "member\t%s\n", strings.Join(sum.Global.Names, "\t"))
	for i, m := range sum.Members {
		fmt.Fprint(w, m)
		for _, name := range sum.Global.Names {
			fmt.Fprintf(w, "\t%s", formatScore(sum.Global.Get(name, i)))
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	fmt.Printf("\nobserved density over %d samples\n", sum.Samples)
	for i := range sum.Centres {
		fmt.Printf("%8.1f  %.5f\n", sum.Centres[i], sum.Density[i])
	}
	return nil
}

type ServeCmd struct {
	Port string `help:"HTTP server port." default:"8080" env:"AQENSEMBLE_PORT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("starting server on :%s", c.Port)
	return api.NewServer(st, c.Port).Run(ctx)
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func printScores(out io.Writer, cfg *config.Config, results []evaluate.Result) {
	names, _ := measure.Default().Resolve(cfg.Measures())
	w := tabwriter.NewWriter(out, 0, 1, 2, ' ', 0)
	fmt.Fprintf(w, "method\tsteps\t%s\ttime\trun\n", strings.Join(names, "\t"))
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%d", res.Method.ID(), res.Steps)
		for _, name := range names {
			fmt.Fprintf(w, "\t%s", formatScore(res.Score(name)))
		}
		status := res.RunID
		if res.Err != nil {
			status = "failed: " + res.Err.Error()
		}
		fmt.Fprintf(w, "\t%s\t%s\n", res.Duration.Round(time.Millisecond), status)
	}
	w.Flush()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aqensemble"),
		kong.Description("Combine air-quality ensemble simulations with online learning."),
		kong.UsageOnError(),
	)

	if cli.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cli.LogFile,
			MaxSize:    32, // MB
			MaxBackups: 3,
			Compress:   true,
		})
	}

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
