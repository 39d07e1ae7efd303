package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"localsolana/native/escrow"
	"localsolana/recon"
	"localsolana/state"
	"localsolana/storage"
)

// escrow-inspect is a read-only operator tool. Given an escrow/trade pair it
// prints the deterministic record and vault addresses; pointed at a data
// directory it additionally dumps the stored record and reconciles every
// escrow's tracked balance against its custody vaults.
func main() {
	escrowID := flag.Uint64("escrow-id", 0, "Escrow identifier")
	tradeID := flag.Uint64("trade-id", 0, "Trade identifier")
	dataDir := flag.String("data", "", "Data directory of a stopped escrowd instance (optional)")
	reconcile := flag.Bool("reconcile", false, "Reconcile tracked balances against vaults (requires -data)")
	flag.Parse()

	if *escrowID == 0 && *tradeID == 0 && !*reconcile {
		flag.Usage()
		os.Exit(2)
	}

	if *escrowID != 0 || *tradeID != 0 {
		record := escrow.RecordAddress(*escrowID, *tradeID)
		fmt.Printf("record:      %s\n", record)
		fmt.Printf("vault:       %s\n", escrow.VaultAddress(record))
		fmt.Printf("buyer bond:  %s\n", escrow.BuyerBondAddress(record))
		fmt.Printf("seller bond: %s\n", escrow.SellerBondAddress(record))
	}

	if *dataDir == "" {
		return
	}
	db, err := storage.NewLevelDB(filepath.Join(*dataDir, "ledger"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	mgr := state.NewManager(db)

	if *escrowID != 0 || *tradeID != 0 {
		record := escrow.RecordAddress(*escrowID, *tradeID)
		if esc, ok := mgr.EscrowGet(record); ok {
			out, err := json.MarshalIndent(esc, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "encode escrow: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		} else {
			fmt.Println("no stored record (never created, or already settled)")
		}
	}

	if !*reconcile {
		return
	}
	anomalies, err := recon.New(mgr).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	if len(anomalies) == 0 {
		fmt.Println("reconciliation clean")
		return
	}
	for _, a := range anomalies {
		out, err := json.Marshal(a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode anomaly: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	}
	os.Exit(1)
}
