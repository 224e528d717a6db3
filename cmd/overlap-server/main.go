// Command overlap-server preprocesses a static phone-number set and
// serves the `parameters`/`oprf`/`query` RPCs over HTTP, grounded on
// leanlp-BTC-coinjoin/cmd/engine/main.go's env-first, log-heavy startup
// sequence (DB connect best-effort, then build dependents, then listen).
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/moya-app/overlap-psi/internal/metrics"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/servercore"
	"github.com/moya-app/overlap-psi/internal/store"
	"github.com/moya-app/overlap-psi/internal/store/postgres"
	"github.com/moya-app/overlap-psi/internal/transport/httpserver"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "overlap-server",
		Short: "Serve secure phone-number overlap queries against a static set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	var persist store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to Postgres, continuing with in-memory store only. Error: %v", err)
		} else {
			defer pg.Close()
			if err := pg.InitSchema(ctx); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			} else {
				persist = pg
				log.Println("Connected to Postgres for preprocessed-server persistence")
			}
		}
	}

	oprfKey, ok := new(big.Int).SetString(cfg.OPRFKeyDecimal, 10)
	if !ok {
		return fmt.Errorf("oprf_key is not a valid decimal integer")
	}

	params := psiparams.Default()
	server := servercore.New(params, oprfKey)

	pre, found, err := persist.LoadPreprocessed(ctx, cfg.ServerSetName)
	if err != nil {
		log.Printf("Warning: failed to load preprocessed state: %v", err)
		found = false
	}

	if found && pre.Parameters.Equal(params) && pre.OPRFKey == oprfKey.String() {
		log.Printf("Loaded preprocessed server set %q from the store, skipping reprocessing", cfg.ServerSetName)
		server.LoadTransposed(pre.Transposed)
	} else {
		serverSet, err := readNumberFile(cfg.ServerSetFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", cfg.ServerSetFile, err)
		}
		log.Printf("Preprocessing %d server-side numbers...", len(serverSet))
		if err := server.Preprocess(serverSet); err != nil {
			return fmt.Errorf("preprocessing server set: %w", err)
		}

		saveErr := persist.SavePreprocessed(ctx, cfg.ServerSetName, store.PreprocessedServer{
			Parameters: params,
			OPRFKey:    oprfKey.String(),
			Transposed: server.Transposed(),
		})
		if saveErr != nil {
			log.Printf("Warning: failed to persist preprocessed state: %v", saveErr)
		}
	}

	reg := metrics.New()
	router := httpserver.NewRouter(server, cfg.AuthTokenHash, reg)

	log.Printf("overlap-server listening on %s", cfg.Addr)
	return router.Run(cfg.Addr)
}

func readNumberFile(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", line, err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
