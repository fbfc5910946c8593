package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/notify"
	"github.com/kelsos/ledger-sync/internal/services"
)

// SyncMonitor drives a pipeline run behind the terminal UI. Pressing 'q' cancels the run
// through the token.
type SyncMonitor struct {
	token   *cancel.Token
	program *tea.Program
}

func NewSyncMonitor(token *cancel.Token, logPath string) *SyncMonitor {
	model := NewModel(token.Cancel, logPath)
	return &SyncMonitor{
		token:   token,
		program: tea.NewProgram(model, tea.WithAltScreen()),
	}
}

func (sm *SyncMonitor) Stop() {
	if sm.program != nil {
		sm.program.Quit()
	}
}

// Notify shows a pipeline notification in the log pane without blocking the caller
func (sm *SyncMonitor) Notify(n notify.Notification) {
	icon := "ℹ️"
	switch n.Level {
	case notify.LevelWarning:
		icon = "⚠️"
	case notify.LevelError:
		icon = "❌"
	}
	go sm.program.Send(LogMessage{Message: fmt.Sprintf("%s [%s] %s: %s", icon, n.ChainID, n.Title, n.Description)})
}

func (sm *SyncMonitor) chainUpdate(snapshot models.ChainSnapshot) {
	sm.program.Send(ChainUpdate{Snapshot: snapshot})
}

func (sm *SyncMonitor) progress(p models.SyncProgress) {
	sm.program.Send(ProgressUpdate{Progress: p})
}

func (sm *SyncMonitor) phaseTwoStart() {
	sm.program.Send(PhaseTwoStarted{})
}

// run starts the pipeline next to the UI and waits for both to end
func run[T any](sm *SyncMonitor, chains []models.ChainConfig, pipeline func() (T, error), summarize func(T) string) (T, error) {
	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		sm.program.Send(ChainsLoaded{Chains: chains})
		result, err := pipeline()
		done <- outcome{result: result, err: err}

		summary := summarize(result)
		if err != nil {
			summary = fmt.Sprintf("❌ Fatal error: %v", err)
		}
		sm.program.Send(Finished{Summary: summary})
	}()

	if _, err := sm.program.Run(); err != nil {
		sm.token.Cancel()
		<-done
		var zero T
		return zero, fmt.Errorf("failed to run TUI: %w", err)
	}

	// the user may have quit early; the cancelled pipeline still has to wind down
	out := <-done
	return out.result, out.err
}

// RunSync runs a full synchronization with live progress
func (sm *SyncMonitor) RunSync(ctx context.Context, service *services.SyncService, chains []models.ChainConfig, filterByBalance bool) (models.SyncResult, error) {
	logger.Info("Starting monitored synchronization of %d chains", len(chains))

	return run(sm, chains, func() (models.SyncResult, error) {
		return service.SynchronizeAll(ctx, services.SyncOptions{
			FilterByBalance: filterByBalance,
			OnProgress:      sm.progress,
			OnCancel:        sm.token.Predicate(),
			OnChainStart:    sm.chainUpdate,
			OnPhaseTwoStart: sm.phaseTwoStart,
			OnChainComplete: func(snapshot models.ChainSnapshot, _ []string) {
				sm.chainUpdate(snapshot)
			},
		})
	}, func(result models.SyncResult) string {
		if result.Cancelled {
			return fmt.Sprintf("⏹ Cancelled with %d chains done", len(result.Snapshots))
		}
		if !result.Success {
			return "❌ Synchronization failed: " + result.Error
		}
		return fmt.Sprintf("🎉 Synchronized %d chains", len(result.Snapshots))
	})
}

// RunDeepScan runs a deep scan with live progress
func (sm *SyncMonitor) RunDeepScan(ctx context.Context, service *services.SyncService, chains []models.ChainConfig, req services.DeepScanRequest) (models.DeepScanResult, error) {
	logger.Info("Starting monitored deep scan of %d chains", len(chains))

	return run(sm, chains, func() (models.DeepScanResult, error) {
		return service.DeepScan(ctx, req, services.DeepScanOptions{
			OnProgress:      sm.progress,
			OnCancel:        sm.token.Predicate(),
			OnChainStart:    sm.chainUpdate,
			OnPhaseTwoStart: sm.phaseTwoStart,
			OnChainUpdate: func(chain models.DeepScanChain) {
				sm.program.Send(ChainUpdate{Snapshot: chain.ChainSnapshot, NewAccounts: chain.NewAccounts()})
				if chain.ScanError != nil {
					sm.program.Send(LogMessage{Message: fmt.Sprintf("❌ %s scan failed: %s", chain.Name, chain.ScanError.Description)})
				}
			},
		})
	}, func(result models.DeepScanResult) string {
		if !result.Success {
			return "❌ Deep scan failed: " + result.Error
		}
		return fmt.Sprintf("🎉 Deep scan found %d new accounts", result.NewAccountsFound)
	})
}
