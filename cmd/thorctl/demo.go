package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli"

	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/channeltest"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
)

var demoCommand = cli.Command{
	Name:  "demo",
	Usage: "open a channel between two in-process parties, pay 0.001 BTC, and close it",
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name:  "fund",
			Value: 1_000_000,
			Usage: "satoshis each party contributes to the channel",
		},
		cli.Int64Flag{
			Name:  "pay",
			Value: 100_000,
			Usage: "satoshis the initiator pays the counterparty in the single update round",
		},
	},
	Action: runDemo,
}

func runDemo(ctx *cli.Context) error {
	useLoggers(levelFromContext(ctx))

	net := &chaincfg.RegressionNetParams
	fund := ctx.Int64("fund")
	pay := ctx.Int64("pay")

	aliceWallet, err := channeltest.NewWallet(net)
	if err != nil {
		return fmt.Errorf("alice wallet: %w", err)
	}
	bobWallet, err := channeltest.NewWallet(net)
	if err != nil {
		return fmt.Errorf("bob wallet: %w", err)
	}

	xAlice, err := keys.NewOwnershipKeyPair()
	if err != nil {
		return fmt.Errorf("alice ownership key: %w", err)
	}
	xBob, err := keys.NewOwnershipKeyPair()
	if err != nil {
		return fmt.Errorf("bob ownership key: %w", err)
	}

	background := context.Background()
	addrAlice, err := aliceWallet.NewAddress(background)
	if err != nil {
		return fmt.Errorf("alice address: %w", err)
	}
	addrBob, err := bobWallet.NewAddress(background)
	if err != nil {
		return fmt.Errorf("bob address: %w", err)
	}

	transportAlice, transportBob := channeltest.NewLoopback()

	const timeLock = 144

	var (
		wg                   sync.WaitGroup
		chanAlice, chanBob   *channel.Channel
		errAlice, errBob     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		chanAlice, errAlice = channel.Open(background, channel.OpenParams{
			Transport:    transportAlice,
			Wallet:       aliceWallet,
			Net:          net,
			XSelf:        xAlice,
			AmountSelf:   fund,
			AmountOther:  fund,
			TimeLock:     timeLock,
			FinalAddress: addrAlice,
		})
	}()
	go func() {
		defer wg.Done()
		chanBob, errBob = channel.Open(background, channel.OpenParams{
			Transport:    transportBob,
			Wallet:       bobWallet,
			Net:          net,
			XSelf:        xBob,
			AmountSelf:   fund,
			AmountOther:  fund,
			TimeLock:     timeLock,
			FinalAddress: addrBob,
		})
	}()
	wg.Wait()
	if errAlice != nil {
		return fmt.Errorf("alice open: %w", errAlice)
	}
	if errBob != nil {
		return fmt.Errorf("bob open: %w", errBob)
	}
	fmt.Printf("opened channel %x: alice=%d bob=%d\n", chanAlice.ID(), fund, fund)

	aliceScriptSelf := chanAlice.FinalScriptSelf
	aliceScriptOther := chanAlice.FinalScriptOther
	bobScriptSelf := chanBob.FinalScriptSelf
	bobScriptOther := chanBob.FinalScriptOther

	newBalanceAlice := channel.Balance{Ours: fund - pay, Theirs: fund + pay}
	newBalanceBob := channel.Balance{Ours: fund + pay, Theirs: fund - pay}

	aliceOutputs, err := channel.SplitOutputsFor(newBalanceAlice, aliceScriptSelf, aliceScriptOther)
	if err != nil {
		return fmt.Errorf("alice split outputs: %w", err)
	}
	bobOutputs, err := channel.SplitOutputsFor(newBalanceBob, bobScriptSelf, bobScriptOther)
	if err != nil {
		return fmt.Errorf("bob split outputs: %w", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		errAlice = chanAlice.Update(background, channel.UpdateParams{
			NewBalance:      newBalanceAlice,
			NewTimeLock:     timeLock,
			NewSplitOutputs: aliceOutputs,
		})
	}()
	go func() {
		defer wg.Done()
		errBob = chanBob.Update(background, channel.UpdateParams{
			NewBalance:      newBalanceBob,
			NewTimeLock:     timeLock,
			NewSplitOutputs: bobOutputs,
		})
	}()
	wg.Wait()
	if errAlice != nil {
		return fmt.Errorf("alice update: %w", errAlice)
	}
	if errBob != nil {
		return fmt.Errorf("bob update: %w", errBob)
	}
	fmt.Printf("updated balances: alice=%d bob=%d\n", newBalanceAlice.Ours, newBalanceAlice.Theirs)

	var closeAlice, closeBob *transaction.CloseTransaction
	wg.Add(2)
	go func() {
		defer wg.Done()
		closeAlice, errAlice = chanAlice.Close(background)
	}()
	go func() {
		defer wg.Done()
		closeBob, errBob = chanBob.Close(background)
	}()
	wg.Wait()
	if errAlice != nil {
		return fmt.Errorf("alice close: %w", errAlice)
	}
	if errBob != nil {
		return fmt.Errorf("bob close: %w", errBob)
	}
	if closeAlice.Tx.TxHash() != closeBob.Tx.TxHash() {
		return fmt.Errorf("alice and bob derived different close transactions")
	}

	if err := aliceWallet.BroadcastSignedTransaction(background, closeAlice.Tx); err != nil {
		return fmt.Errorf("broadcast close: %w", err)
	}
	fmt.Printf("closed channel via txid %s, %d outputs\n", closeAlice.Tx.TxHash(), len(closeAlice.Tx.TxOut))
	for i, out := range closeAlice.Tx.TxOut {
		fmt.Printf("  output %d: %d sats\n", i, out.Value)
	}
	return nil
}
