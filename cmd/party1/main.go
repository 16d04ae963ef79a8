// Command party1 runs Obsidian's dialing party: it connects to party0,
// receives its half of the offline-dealt preprocessing material and the
// bidders' opened client-encoding values over the session connection, then
// runs the auction alongside party0. It never sees a bid in the clear, nor
// the alpha-MAC key in the clear — only its additive share of the latter
// and, via the DPF layers, of every derived quantity.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/obsidian-mpc/obsidian/internal/party"
	"github.com/obsidian-mpc/obsidian/internal/preprocess"
	"github.com/obsidian-mpc/obsidian/internal/prg"
	"github.com/obsidian-mpc/obsidian/internal/transcript"
	"github.com/obsidian-mpc/obsidian/internal/transport"
	"github.com/obsidian-mpc/obsidian/pkg/dpf"
	"github.com/obsidian-mpc/obsidian/protocols/auction"
)

const sessionID = "obsidian-session-v1"

var (
	addr    string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "party1 [num_clients] [domain_size]",
		Short: "Run Obsidian's dialing party",
		Args:  cobra.MaximumNArgs(2),
		RunE:  run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8889", "address of party0 to connect to")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	numClients, domainSize, err := parseSizes(args)
	if err != nil {
		return err
	}
	domainBits := dpf.BitsForDomain(domainSize)
	if dpf.DomainSize(domainBits) != domainSize {
		return fmt.Errorf("party1: domain_size must be a power of two, got %d", domainSize)
	}

	log, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("party1: %w", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	hello := transport.Hello{SessionID: []byte(sessionID), NumClients: numClients, DomainSize: domainSize}
	conn, err := transport.Dial(addr, party.One, hello, log)
	if err != nil {
		return fmt.Errorf("party1: %w", err)
	}
	defer conn.Close()
	sugar.Infow("connected", "addr", addr, "clients", numClients, "domain", domainSize)

	bundleBytes, err := conn.RecvRaw()
	if err != nil {
		return fmt.Errorf("party1: receive bundle: %w", err)
	}
	bundle, err := preprocess.DecodeBundle(bundleBytes)
	if err != nil {
		return fmt.Errorf("party1: decode bundle: %w", err)
	}

	xBytes, err := conn.RecvRaw()
	if err != nil {
		return fmt.Errorf("party1: receive client-encoding values: %w", err)
	}
	xs, err := preprocess.DecodeXValues(xBytes)
	if err != nil {
		return fmt.Errorf("party1: decode client-encoding values: %w", err)
	}
	sugar.Debug("received preprocessing material from peer")

	g, err := prg.New(prg.FixedKey())
	if err != nil {
		return fmt.Errorf("party1: %w", err)
	}
	tx := transcript.New([]byte(sessionID))

	v1, v2, v3, err := preprocess.VerifyBundle(conn, tx, g, party.One.Index(), bundle)
	if err != nil {
		sugar.Errorw("preprocessing verification failed", "error", err)
		return fmt.Errorf("party1: %w", err)
	}
	sugar.Debug("preprocessing verified")

	result, err := auction.Run(party.One, conn, tx, bundle, v1, v2, v3, xs)
	if err != nil {
		sugar.Errorw("auction failed", "error", err)
		return fmt.Errorf("party1: %w", err)
	}

	sugar.Infow("auction complete", "winner", result.Winner, "second_price_level", result.SecondPriceLevel)
	fmt.Printf("winner=%d second_price_level=%d\n", result.Winner, result.SecondPriceLevel)
	return nil
}

func parseSizes(args []string) (numClients, domainSize int, err error) {
	numClients, domainSize = 100, 1024
	if len(args) > 0 {
		numClients, err = strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid num_clients %q: %w", args[0], err)
		}
	}
	if len(args) > 1 {
		domainSize, err = strconv.Atoi(args[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid domain_size %q: %w", args[1], err)
		}
	}
	if numClients <= 0 {
		return 0, 0, fmt.Errorf("num_clients must be positive, got %d", numClients)
	}
	if domainSize <= 1 {
		return 0, 0, fmt.Errorf("domain_size must be greater than 1, got %d", domainSize)
	}
	return numClients, domainSize, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
