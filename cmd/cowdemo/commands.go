package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/andreyvit/cowdb"
	"github.com/andreyvit/cowdb/boltstore"
	"github.com/andreyvit/cowdb/history"
	"github.com/andreyvit/cowdb/internal/bank"
)

var (
	rootCmd = &cobra.Command{
		Use:           "cowdemo",
		Short:         "Exercises a copy-on-write record store with a tiny bank",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Seed two accounts, transfer between them, save, reload and query",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Load a snapshot and print its records and indexes",
		Args:  cobra.NoArgs,
		RunE:  runDump,
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print the change journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	snapshotFile string
	journalFile  string
	boltFile     string
	verbose      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&snapshotFile, "file", "accounts.bin", "Snapshot file")
	rootCmd.PersistentFlags().StringVar(&journalFile, "journal", "", "Append every change to this history file")
	rootCmd.PersistentFlags().StringVar(&boltFile, "bolt", "", "Also save to (and reload from) this bbolt database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every store operation")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(historyCmd)
}

func newStore(onChange func(*cowdb.Change)) *cowdb.Store {
	return cowdb.New(cowdb.Options{
		Logf:     log.Printf,
		Verbose:  verbose,
		OnChange: onChange,
	})
}

func loadBank(s *cowdb.Store) error {
	if boltFile != "" {
		if err := boltstore.Load[*bank.Account](s, boltFile); err != nil {
			return err
		}
		return boltstore.Load[*bank.Transfer](s, boltFile)
	}
	if err := cowdb.Load[*bank.Account](s, snapshotFile); err != nil {
		return err
	}
	return cowdb.Load[*bank.Transfer](s, snapshotFile)
}

func runDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var onChange func(*cowdb.Change)
	if journalFile != "" {
		j, err := history.Open(journalFile, history.Options{Verbose: verbose})
		if err != nil {
			return err
		}
		defer j.Close()
		onChange = j.Hook()
		defer func() {
			if err := j.Err(); err != nil {
				log.Printf("cowdemo: journal: %v", err)
			}
		}()
	}

	s := newStore(onChange)
	alice := s.Add(bank.NewAccount("Alice", 1000))
	bob := s.Add(bank.NewAccount("Bob", 500))
	trID, err := bank.TransferFunds(s, alice, bob, 200, "demo")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "transfer %d: %d -> %d, 200\n", trID, alice, bob)

	if err := s.Save(snapshotFile); err != nil {
		return err
	}
	if boltFile != "" {
		if err := boltstore.Save(s, boltFile); err != nil {
			return err
		}
	}

	loaded := newStore(nil)
	if err := loadBank(loaded); err != nil {
		return err
	}
	for _, h := range cowdb.All[*bank.Account](loaded) {
		printAccount(out, h)
	}

	matches, err := cowdb.QueryRange[*bank.Account](loaded, "balance", "500", "1000")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "balance in [500, 1000]: %d accounts\n", len(matches))
	for _, h := range matches {
		printAccount(out, h)
	}
	return nil
}

func printAccount(w io.Writer, h cowdb.Handle[*bank.Account]) {
	a := h.Get()
	fmt.Fprintf(w, "  %s (#%d v%d): %s\n", a.Owner, h.ID(), h.Version(), bank.FormatAmount(a.Balance))
}

func runDump(cmd *cobra.Command, args []string) error {
	s := newStore(nil)
	if err := loadBank(s); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), s.Dump(cowdb.DumpAll))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if journalFile == "" {
		return fmt.Errorf("--journal is required")
	}
	out := cmd.OutOrStdout()
	return history.Read(journalFile, func(e history.Entry) error {
		fmt.Fprintf(out, "%d %s %s/%d v%d (%d bytes)\n", e.Seq, e.Op, e.TypeName, e.ID, e.Version, len(e.Payload))
		return nil
	})
}
