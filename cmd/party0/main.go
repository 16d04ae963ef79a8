// Command party0 runs Obsidian's listening party: it binds a TCP port,
// accepts party1's connection, and plays the offline dealer (spec §4.H)
// before running the auction itself. Acting as both a protocol party and
// the dealer is a demo-only convenience — in a deployed system this
// correlated randomness would come from a two-party generation
// sub-protocol instead (see internal/preprocess's package doc) — but it
// lets this pair of binaries demonstrate the whole protocol without a
// third piece of infrastructure.
package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
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
		Use:   "party0 [num_clients] [domain_size]",
		Short: "Run Obsidian's listening party and offline dealer",
		Args:  cobra.MaximumNArgs(2),
		RunE:  run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8889", "address to bind and listen on")
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
		return fmt.Errorf("party0: domain_size must be a power of two, got %d", domainSize)
	}

	log, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	bids, err := randomBids(numClients, domainSize)
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}

	ln, err := transport.Listen(addr)
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}
	defer ln.Close()
	sugar.Infow("listening", "addr", addr, "clients", numClients, "domain", domainSize)

	hello := transport.Hello{SessionID: []byte(sessionID), NumClients: numClients, DomainSize: domainSize}
	conn, err := ln.Accept(party.Zero, hello, log)
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}
	defer conn.Close()
	sugar.Info("peer connected")

	dealer, err := preprocess.NewDealer()
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}
	b0, b1, xs, err := dealer.DealWithBids(numClients, domainBits, bids)
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}

	if err := conn.SendRaw(b1.Encode()); err != nil {
		return fmt.Errorf("party0: send bundle: %w", err)
	}
	if err := conn.SendRaw(preprocess.EncodeXValues(xs)); err != nil {
		return fmt.Errorf("party0: send client-encoding values: %w", err)
	}
	sugar.Debug("dealt preprocessing material to peer")

	g, err := prg.New(prg.FixedKey())
	if err != nil {
		return fmt.Errorf("party0: %w", err)
	}
	tx := transcript.New([]byte(sessionID))

	v1, v2, v3, err := preprocess.VerifyBundle(conn, tx, g, party.Zero.Index(), b0)
	if err != nil {
		sugar.Errorw("preprocessing verification failed", "error", err)
		return fmt.Errorf("party0: %w", err)
	}
	sugar.Debug("preprocessing verified")

	result, err := auction.Run(party.Zero, conn, tx, b0, v1, v2, v3, xs)
	if err != nil {
		sugar.Errorw("auction failed", "error", err)
		return fmt.Errorf("party0: %w", err)
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

// randomBids samples each bidder's price uniformly from [0, domainSize),
// standing in for the client-submission step spec.md's Non-goals
// explicitly exclude ("auction-setup glue that randomly samples bids").
func randomBids(numClients, domainSize int) ([]int, error) {
	bids := make([]int, numClients)
	max := big.NewInt(int64(domainSize))
	for i := range bids {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, fmt.Errorf("randomBids: %w", err)
		}
		bids[i] = int(n.Int64())
	}
	return bids, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
