package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"cardshuffler.com/server/cluster"
	"cardshuffler.com/server/crashtest"
	"cardshuffler.com/server/driver"
	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/nats"
	"cardshuffler.com/server/rest"
	"cardshuffler.com/server/util"
)

var timingsFile *string
var listenAddr *string
var hostWorker *bool
var retiredJobs *int
var mainLogger = logging.GetZeroLogger("main::main", nil)

func init() {
	timingsFile = flag.String("timings", "timings.yaml", "YAML file containing job timeout and retry settings")
	listenAddr = flag.String("addr", ":8080", "address of the rest server")
	hostWorker = flag.Bool("worker", false, "also host a cluster worker on NATS (cluster mode nats only)")
	retiredJobs = flag.Int("retired-jobs", 1024, "number of timed out jobs remembered for late results")
}

func main() {
	err := run()
	if err != nil {
		mainLogger.Error().Msg(err.Error())
		os.Exit(1)
	}
}

func run() error {
	logLevel := util.Env.GetZeroLogLogLevel()
	fmt.Printf("Setting log level to %s\n", logLevel)
	zerolog.SetGlobalLevel(logLevel)
	flag.Parse()

	if util.Env.IsCrashTestEnabled() {
		mainLogger.Warn().Msg("Running with crash test enabled.")
	}
	crashtest.SetExitFunc(func() {
		os.Exit(1)
	})

	config := driver.DefaultConfig()
	config.JobTimeout = time.Duration(util.Env.GetJobTimeoutSec()) * time.Second
	if *timingsFile != "" {
		timings, err := driver.ParseTimingsFile(*timingsFile)
		if err != nil {
			return errors.Wrap(err, "Error while parsing timings")
		}
		config = timings.Apply(config)
	}

	store, err := newLedgerStore()
	if err != nil {
		return errors.Wrap(err, "Error while creating ledger store")
	}
	ledger := game.NewLedger(store)

	c, err := newCluster(ledger, &config)
	if err != nil {
		return errors.Wrap(err, "Error while connecting to the compute cluster")
	}

	tracker, err := job.NewTracker(*retiredJobs)
	if err != nil {
		return errors.Wrap(err, "Error while creating job tracker")
	}
	d, err := driver.NewDriver(config, ledger, tracker, c)
	if err != nil {
		return errors.Wrap(err, "Error while creating driver")
	}
	mainLogger.Info().Msgf("Session public key: %s", d.PublicKey())

	return rest.RunRestServer(d, *listenAddr)
}

func newLedgerStore() (game.LedgerStore, error) {
	method := util.Env.GetPersistMethod()
	mainLogger.Info().Msgf("Persist method: %s", method)
	switch method {
	case "memory":
		return game.NewMemoryLedgerStore(), nil
	case "redis":
		redisURL := fmt.Sprintf("%s:%d", util.Env.GetRedisHost(), util.Env.GetRedisPort())
		return game.NewRedisLedgerStore(redisURL, util.Env.GetRedisPW(), util.Env.GetRedisDB()), nil
	case "postgres":
		return game.NewPostgresLedgerStore(util.Env.GetPostgresConnStr())
	}
	return nil, errors.Errorf("unknown persist method [%s]", method)
}

// newCluster connects the configured compute cluster and fills in its public
// key when the environment does not pin one.
func newCluster(ledger *game.Ledger, config *driver.Config) (cluster.Cluster, error) {
	mode := util.Env.GetClusterMode()
	mainLogger.Info().Msgf("Cluster mode: %s", mode)

	switch mode {
	case "local":
		local, err := cluster.NewLocalCluster()
		if err != nil {
			return nil, err
		}
		config.ClusterPublicKey = local.PublicKey()
		return local, nil

	case "nats":
		natsURL := util.Env.GetNatsURL()
		mainLogger.Info().Msgf("NATS URL: %s", natsURL)
		nc, err := natsgo.Connect(natsURL)
		if err != nil {
			return nil, errors.Wrap(err, "Error connecting to NATS server")
		}
		ledger.SetPublisher(nats.NewEventBroadcaster(nc))

		if *hostWorker {
			local, err := cluster.NewLocalCluster()
			if err != nil {
				return nil, err
			}
			if _, err := nats.NewClusterWorker(nc, local); err != nil {
				return nil, errors.Wrap(err, "Error creating cluster worker")
			}
			config.ClusterPublicKey = local.PublicKey()
		} else {
			key, err := encryption.ParsePublicKey(util.Env.GetClusterPublicKey())
			if err != nil {
				return nil, errors.Wrap(err, "CLUSTER_PUBLIC_KEY must be set in nats mode")
			}
			config.ClusterPublicKey = key
		}
		client, err := nats.NewClusterClient(nc)
		if err != nil {
			return nil, errors.Wrap(err, "Error creating cluster client")
		}
		return client, nil
	}
	return nil, errors.Errorf("unknown cluster mode [%s]", mode)
}
