package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/notify"
	"github.com/kelsos/ledger-sync/internal/services"
	"github.com/kelsos/ledger-sync/internal/storage"
	"github.com/kelsos/ledger-sync/internal/tui"
)

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var (
		useTUI          bool
		filterByBalance bool
		outFile         string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover and enrich the device accounts on every configured chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, useTUI)
			if err != nil {
				return err
			}
			defer a.close()
			a.start()

			if cmd.Flags().Changed("filter-balance") {
				a.cfg.FilterByBalance = filterByBalance
			}
			if outFile != "" {
				a.cfg.StateFile = outFile
			}

			var result models.SyncResult
			if useTUI {
				monitor := tui.NewSyncMonitor(a.token, a.logPath)
				service, err := a.service(notify.Multi{notify.Log{}, monitor})
				if err != nil {
					return err
				}
				_, migrate, _ := a.registry.Partition()
				chains := append([]models.ChainConfig{a.registry.DestinationChain()}, migrate...)
				result, err = monitor.RunSync(context.Background(), service, chains, a.cfg.FilterByBalance)
				if err != nil {
					return err
				}
			} else {
				service, err := a.service(notify.Log{})
				if err != nil {
					return err
				}
				result, err = service.SynchronizeAll(context.Background(), services.SyncOptions{
					FilterByBalance: a.cfg.FilterByBalance,
					OnCancel:        a.token.Predicate(),
					OnProgress: func(p models.SyncProgress) {
						logger.Info("Progress %d%% (%s %d/%d)", p.Percentage, p.Phase, p.Scanned, p.Total)
					},
					OnChainComplete: func(snapshot models.ChainSnapshot, _ []string) {
						logger.Info("Chain %s finished: %s", snapshot.ID, snapshot.State)
					},
				})
				if err != nil {
					return err
				}
			}

			printSyncResult(cmd.OutOrStdout(), result)
			if !result.Success {
				return fmt.Errorf("synchronization failed: %s", result.Error)
			}

			path, err := storage.ResolveStatePath(a.cfg.StateFile)
			if err != nil {
				return err
			}
			if err := storage.SaveSyncResult(path, result); err != nil {
				return err
			}
			logger.Info("Stored synchronization state in %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&useTUI, "tui", "", false, "Show a live progress monitor")
	cmd.Flags().BoolVarP(&filterByBalance, "filter-balance", "", false, "Drop accounts without funds")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "State file to write (default: LEDGER_SYNC_STATE_FILE)")

	return cmd
}

func newDeepScanCmd(flags *globalFlags) *cobra.Command {
	var (
		useTUI          bool
		chainID         string
		accounts        []uint
		addresses       []uint
		filterByBalance bool
	)

	cmd := &cobra.Command{
		Use:   "deep-scan",
		Short: "Scan extra derivation indices and merge new accounts into the stored state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, useTUI)
			if err != nil {
				return err
			}
			defer a.close()
			a.start()

			path, err := storage.ResolveStatePath(a.cfg.StateFile)
			if err != nil {
				return err
			}
			state, err := storage.LoadState(path)
			if err != nil {
				return err
			}

			if chainID == "all" {
				chainID = ""
			}
			accountIndices, err := toIndices("accounts", accounts)
			if err != nil {
				return err
			}
			addressIndices, err := toIndices("addresses", addresses)
			if err != nil {
				return err
			}
			req := services.DeepScanRequest{
				ChainID:         chainID,
				AccountIndices:  accountIndices,
				AddressIndices:  addressIndices,
				Current:         state.Snapshots,
				FilterByBalance: filterByBalance,
			}

			var result models.DeepScanResult
			if useTUI {
				monitor := tui.NewSyncMonitor(a.token, a.logPath)
				service, err := a.service(notify.Multi{notify.Log{}, monitor})
				if err != nil {
					return err
				}
				_, chains, _ := a.registry.Partition()
				if chain, ok := a.registry.Chain(chainID); ok {
					chains = []models.ChainConfig{chain}
				}
				result, err = monitor.RunDeepScan(context.Background(), service, chains, req)
				if err != nil {
					return err
				}
			} else {
				service, err := a.service(notify.Log{})
				if err != nil {
					return err
				}
				result, err = service.DeepScan(context.Background(), req, services.DeepScanOptions{
					OnCancel: a.token.Predicate(),
					OnProgress: func(p models.SyncProgress) {
						logger.Info("Progress %d%% (%s %d/%d)", p.Percentage, p.Phase, p.Scanned, p.Total)
					},
				})
				if err != nil {
					return err
				}
			}

			printDeepScanResult(cmd.OutOrStdout(), result)
			if !result.Success {
				return fmt.Errorf("deep scan failed: %s", result.Error)
			}

			if err := storage.SaveDeepScan(path, state, result); err != nil {
				return err
			}
			logger.Info("Stored merged state in %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&useTUI, "tui", "", false, "Show a live progress monitor")
	cmd.Flags().StringVarP(&chainID, "chain", "", "all", "Chain id to scan, or all")
	cmd.Flags().UintSliceVarP(&accounts, "accounts", "a", []uint{0}, "Account indices to scan")
	cmd.Flags().UintSliceVarP(&addresses, "addresses", "", []uint{0}, "Address indices to scan")
	cmd.Flags().BoolVarP(&filterByBalance, "filter-balance", "", false, "Drop accounts without funds")

	return cmd
}

func newChainsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the configured chains and whether they need migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			defer a.close()

			destination, migrate, skipped := a.registry.Partition()

			t := newTable("CHAIN", "NAME", "PATH", "SS58", "ENDPOINTS", "ROLE")
			t.Row(destination.ID, destination.Name, destination.BIP44Path, strconv.Itoa(int(destination.SS58Prefix)), strconv.Itoa(len(destination.RPCEndpoints)), "destination")
			for _, chain := range migrate {
				t.Row(chain.ID, chain.Name, chain.BIP44Path, strconv.Itoa(int(chain.SS58Prefix)), strconv.Itoa(len(chain.RPCEndpoints)), "migrate")
			}
			for _, chain := range skipped {
				t.Row(chain.ID, chain.Name, chain.BIP44Path, strconv.Itoa(int(chain.SS58Prefix)), strconv.Itoa(len(chain.RPCEndpoints)), "no need to migrate")
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}

// toIndices converts flag values to hardened path indices, rejecting anything out of range
func toIndices(flag string, values []uint) ([]uint32, error) {
	indices := make([]uint32, 0, len(values))
	for _, v := range values {
		if v > models.MaxPathIndex {
			return nil, fmt.Errorf("--%s: index %d exceeds %d", flag, v, models.MaxPathIndex)
		}
		indices = append(indices, uint32(v))
	}
	return indices, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

func errorText(err *models.ChainError) string {
	if err == nil {
		return ""
	}
	return err.Description
}

func printSyncResult(w io.Writer, result models.SyncResult) {
	t := newTable("CHAIN", "STATUS", "ACCOUNTS", "ERROR")
	for _, snapshot := range result.Snapshots {
		t.Row(snapshot.ID, string(snapshot.State.Status()), strconv.Itoa(snapshot.AccountCount()), errorText(snapshot.State.Err()))
	}
	for _, snapshot := range result.Skipped {
		t.Row(snapshot.ID, string(snapshot.State.Status()), "-", "")
	}
	fmt.Fprintln(w, t.Render())

	if result.Cancelled {
		fmt.Fprintln(w, "Synchronization was cancelled; chains not reached are missing from the result.")
	}
}

func printDeepScanResult(w io.Writer, result models.DeepScanResult) {
	t := newTable("CHAIN", "STATUS", "BEFORE", "AFTER", "NEW", "SCAN ERROR")
	for _, chain := range result.Chains {
		t.Row(
			chain.ID,
			string(chain.State.Status()),
			strconv.Itoa(chain.OriginalAccountCount),
			strconv.Itoa(chain.AccountCount()),
			strconv.Itoa(chain.NewAccounts()),
			errorText(chain.ScanError),
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "New accounts found: %d\n", result.NewAccountsFound)

	if result.Cancelled {
		fmt.Fprintln(w, "Deep scan was cancelled; remaining chains were left unchanged.")
	}
}
