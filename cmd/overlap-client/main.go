// Command overlap-client performs a secure phone-number overlap query
// against a remote overlap-server, grounded on original_source/client.py's
// argparse CLI (-t/--token, -u/--url, positional number_file) but built on
// cobra the way Sumatoshi-tech-codefang's cmd/codefang wires its
// subcommands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/moya-app/overlap-psi/internal/clientcore"
	"github.com/moya-app/overlap-psi/internal/transport/httpclient"
)

const defaultURL = "https://api.moya.app/v1/overlap"

func main() {
	var token, url string

	root := &cobra.Command{
		Use:   "overlap-client NUMBER_FILE",
		Short: "Query a remote overlap-server for which of your numbers it also holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], url, token)
		},
	}
	root.Flags().StringVarP(&token, "token", "t", "", "bearer token")
	root.Flags().StringVarP(&url, "url", "u", defaultURL, "remote URL to connect to")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func run(numberFile, url, token string) error {
	clientSet, err := readNumberFile(numberFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", numberFile, err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	helper := httpclient.New(url+"/", token, httpClient)

	ctx := context.Background()
	params, err := helper.FetchParameters(ctx)
	if err != nil {
		return fmt.Errorf("fetching parameters: %w", err)
	}

	client, err := clientcore.New(params, helper, nil)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	overlapped, err := client.GetIntersection(ctx, clientSet)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	fmt.Printf("Found %s overlapped numbers:\n", color.GreenString(humanize.Comma(int64(len(overlapped)))))
	for _, number := range overlapped {
		fmt.Printf("    %d\n", number)
	}
	return nil
}

// readNumberFile parses one phone number per line, matching
// original_source/client.py's `[int(i) for i in f.read().splitlines()]`.
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
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
